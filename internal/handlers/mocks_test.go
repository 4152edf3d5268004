package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/grooveguessr/grooveguessr/internal/lobby"
	"github.com/grooveguessr/grooveguessr/internal/models"
)

// --- LobbyService ---

type MockLobbyService struct {
	mock.Mock
}

func lobbyOrNil(v any) *models.Lobby {
	l, _ := v.(*models.Lobby)
	return l
}

func (m *MockLobbyService) CreateLobby(ctx context.Context, hostID string) (*models.Lobby, error) {
	args := m.Called(ctx, hostID)
	return lobbyOrNil(args.Get(0)), args.Error(1)
}

func (m *MockLobbyService) JoinLobby(ctx context.Context, id, playerID string) (*models.Lobby, error) {
	args := m.Called(ctx, id, playerID)
	return lobbyOrNil(args.Get(0)), args.Error(1)
}

func (m *MockLobbyService) ConfigureLobby(ctx context.Context, id, callerID string, guessingTime int) (*models.Lobby, error) {
	args := m.Called(ctx, id, callerID, guessingTime)
	return lobbyOrNil(args.Get(0)), args.Error(1)
}

func (m *MockLobbyService) SetReady(ctx context.Context, id, callerID string, ready bool) error {
	args := m.Called(ctx, id, callerID, ready)
	return args.Error(0)
}

func (m *MockLobbyService) SetContent(ctx context.Context, id, callerID, kind, payload string) (*models.Content, error) {
	args := m.Called(ctx, id, callerID, kind, payload)
	c, _ := args.Get(0).(*models.Content)
	return c, args.Error(1)
}

func (m *MockLobbyService) StartGame(ctx context.Context, id, callerID string) (*models.Lobby, error) {
	args := m.Called(ctx, id, callerID)
	return lobbyOrNil(args.Get(0)), args.Error(1)
}

func (m *MockLobbyService) Forward(ctx context.Context, id, callerID string) (*models.Lobby, error) {
	args := m.Called(ctx, id, callerID)
	return lobbyOrNil(args.Get(0)), args.Error(1)
}

func (m *MockLobbyService) Guess(ctx context.Context, id, callerID string, round int, guessedID string) error {
	args := m.Called(ctx, id, callerID, round, guessedID)
	return args.Error(0)
}

func (m *MockLobbyService) ListPlayers(ctx context.Context, id string) ([]models.PlayerView, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).([]models.PlayerView)
	return p, args.Error(1)
}

func (m *MockLobbyService) CurrentContent(ctx context.Context, id string) (*models.Content, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*models.Content)
	return c, args.Error(1)
}

func (m *MockLobbyService) GuessesFor(ctx context.Context, id, callerID string) (models.Guesses, error) {
	args := m.Called(ctx, id, callerID)
	g, _ := args.Get(0).(models.Guesses)
	return g, args.Error(1)
}

func (m *MockLobbyService) View(ctx context.Context, id, callerID string) (*lobby.LobbyView, error) {
	args := m.Called(ctx, id, callerID)
	v, _ := args.Get(0).(*lobby.LobbyView)
	return v, args.Error(1)
}

// --- UserDirectory ---

type MockUserDirectory struct {
	mock.Mock
}

func (m *MockUserDirectory) CreateUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserDirectory) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *MockUserDirectory) RenameUser(ctx context.Context, id, name string) error {
	args := m.Called(ctx, id, name)
	return args.Error(0)
}

func (m *MockUserDirectory) AuthenticateUser(ctx context.Context, email, password string) (*models.User, error) {
	args := m.Called(ctx, email, password)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

// --- EventLog ---

type MockEventLog struct {
	mock.Mock
}

func (m *MockEventLog) EventsFor(ctx context.Context, lobbyID string) ([]models.LobbyEvent, error) {
	args := m.Called(ctx, lobbyID)
	ev, _ := args.Get(0).([]models.LobbyEvent)
	return ev, args.Error(1)
}
