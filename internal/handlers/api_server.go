// internal/handlers/api_server.go
package handlers

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"github.com/grooveguessr/grooveguessr/internal/lobby"
	"github.com/grooveguessr/grooveguessr/internal/middleware"
	"github.com/grooveguessr/grooveguessr/internal/models"
)

// LobbyService is the orchestrator surface the HTTP layer drives.
type LobbyService interface {
	CreateLobby(ctx context.Context, hostID string) (*models.Lobby, error)
	JoinLobby(ctx context.Context, id, playerID string) (*models.Lobby, error)
	ConfigureLobby(ctx context.Context, id, callerID string, guessingTime int) (*models.Lobby, error)
	SetReady(ctx context.Context, id, callerID string, ready bool) error
	SetContent(ctx context.Context, id, callerID, kind, payload string) (*models.Content, error)
	StartGame(ctx context.Context, id, callerID string) (*models.Lobby, error)
	Forward(ctx context.Context, id, callerID string) (*models.Lobby, error)
	Guess(ctx context.Context, id, callerID string, round int, guessedID string) error
	ListPlayers(ctx context.Context, id string) ([]models.PlayerView, error)
	CurrentContent(ctx context.Context, id string) (*models.Content, error)
	GuessesFor(ctx context.Context, id, callerID string) (models.Guesses, error)
	View(ctx context.Context, id, callerID string) (*lobby.LobbyView, error)
}

// UserDirectory stores the accounts behind session tokens.
type UserDirectory interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	RenameUser(ctx context.Context, id, name string) error
	AuthenticateUser(ctx context.Context, email, password string) (*models.User, error)
}

// EventLog reads the persisted lobby activity journal.
type EventLog interface {
	EventsFor(ctx context.Context, lobbyID string) ([]models.LobbyEvent, error)
}

// APIServer holds the dependencies shared by every handler.
type APIServer struct {
	Lobbies LobbyService
	Users   UserDirectory
	Events  EventLog
	Logger  logrus.FieldLogger

	// BaseURL prefixes join links in QR codes. Derived per request when empty.
	BaseURL string
	// OriginPatterns is passed to the websocket upgrader.
	OriginPatterns []string
}

func NewAPIServer(lobbies LobbyService, users UserDirectory, events EventLog, logger logrus.FieldLogger) *APIServer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &APIServer{
		Lobbies: lobbies,
		Users:   users,
		Events:  events,
		Logger:  logger,
	}
}

// Routes builds the router wrapped in request logging.
func (s *APIServer) Routes() http.Handler {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		middleware.Logger(r.Context(), s.Logger).WithField("panic", i).Error("handler panicked")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal error"})
	}
	mux.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "no such route"})
	})

	mux.GET("/healthz", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.POST("/user/create", s.CreateUserHandler)
	mux.POST("/user/login", s.LoginHandler)
	mux.PUT("/user/name", s.RenameUserHandler)
	mux.GET("/user/me", s.MeHandler)

	mux.POST("/lobby", s.CreateLobbyHandler)
	mux.GET("/lobby/:id", s.ViewLobbyHandler)
	mux.POST("/lobby/:id/join", s.JoinLobbyHandler)
	mux.PUT("/lobby/:id/config", s.ConfigureLobbyHandler)
	mux.PUT("/lobby/:id/ready", s.SetReadyHandler)
	mux.PUT("/lobby/:id/content", s.SetContentHandler)
	mux.POST("/lobby/:id/start", s.StartGameHandler)
	mux.POST("/lobby/:id/forward", s.ForwardHandler)
	mux.POST("/lobby/:id/guess", s.GuessHandler)
	mux.GET("/lobby/:id/players", s.ListPlayersHandler)
	mux.GET("/lobby/:id/content/current", s.CurrentContentHandler)
	mux.GET("/lobby/:id/guesses", s.GuessesHandler)
	mux.GET("/lobby/:id/events", s.EventsHandler)
	mux.GET("/lobby/:id/ws", s.LobbyWSHandler)
	mux.GET("/lobby/:id/qr", s.QRHandler)

	return middleware.LogMiddleware(s.Logger)(mux)
}

func (s *APIServer) log(r *http.Request) logrus.FieldLogger {
	return middleware.Logger(r.Context(), s.Logger)
}
