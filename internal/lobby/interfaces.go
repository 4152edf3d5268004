package lobby

import (
	"context"
	"time"

	"github.com/grooveguessr/grooveguessr/internal/models"
)

// LobbyStore is the durable lobby header and membership store.
type LobbyStore interface {
	CreateWithHost(ctx context.Context, lobby *models.Lobby) error
	Get(ctx context.Context, id string) (*models.Lobby, error)
	Delete(ctx context.Context, id string) error
	UpdateGuessingTime(ctx context.Context, id string, seconds int) error
	UpdateHost(ctx context.Context, id, hostID string) error
	Start(ctx context.Context, id string, sequence []string, at time.Time) error
	Advance(ctx context.Context, id, from, to string) error
	MarkFinished(ctx context.Context, id string, at time.Time) error

	AddPlayer(ctx context.Context, lobbyID, playerID string) error
	RemovePlayers(ctx context.Context, lobbyID string, playerIDs []string) error
	PlayerIDs(ctx context.Context, lobbyID string) ([]string, error)
	SetReady(ctx context.Context, lobbyID, playerID string, ready bool) error
	ListPlayers(ctx context.Context, lobbyID string) ([]models.PlayerView, error)
}

// ContentRegistry stores one guessable item per (lobby, player).
type ContentRegistry interface {
	Submit(ctx context.Context, c models.Content) error
	Find(ctx context.Context, lobbyID, playerID string) (*models.Content, error)
	FindCurrent(ctx context.Context, lobby *models.Lobby) (*models.Content, error)
	CountFor(ctx context.Context, lobbyID string) (int, error)
	PlayerIDs(ctx context.Context, lobbyID string) ([]string, error)
}

// GuessLedger records guesses addressed by round index.
type GuessLedger interface {
	RecordGuess(ctx context.Context, lobbyID, guesserID string, round int, guessedID string) error
	GuessesFor(ctx context.Context, lobbyID, playerID string) (models.Guesses, error)
}

// PresenceTracker is the shared TTL liveness store.
type PresenceTracker interface {
	Heartbeat(ctx context.Context, lobbyID, playerID string) error
	PresentPlayerIDs(ctx context.Context, lobbyID string) (models.PlayerSet, error)
	Forget(ctx context.Context, lobbyID string) error
}

// EventPublisher receives lobby transitions for the activity journal.
type EventPublisher interface {
	Publish(ctx context.Context, ev models.LobbyEvent) error
}
