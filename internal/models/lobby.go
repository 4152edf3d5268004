// internal/models/lobby.go
package models

import (
	"slices"
	"time"
)

// Phase is the derived state of a lobby's game. It is never stored directly.
type Phase string

const (
	PhaseForming    Phase = "forming"
	PhaseInProgress Phase = "in_progress"
	PhaseFinished   Phase = "finished"
)

// Lobby represents a row in the lobbies table.
type Lobby struct {
	ID     string `json:"id"`
	HostID string `json:"hostId"`

	// GuessingTime is how many seconds a round lasts on the client.
	GuessingTime int `json:"guessingTime"`

	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`

	// Sequence is the turn order frozen at game start.
	Sequence      []string `json:"-"`
	CurrentUserID string   `json:"currentUserId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// IsHost reports whether playerID owns the lobby.
func (l *Lobby) IsHost(playerID string) bool {
	return playerID != "" && l.HostID == playerID
}

// RoundIndex returns the position of the current turn in the sequence, or -1
// if the game has not started or the pointer is dangling.
func (l *Lobby) RoundIndex() int {
	if l.StartedAt == nil || l.CurrentUserID == "" {
		return -1
	}
	return slices.Index(l.Sequence, l.CurrentUserID)
}

// Phase derives the lobby state from its start stamp, turn pointer and exhaustion flag.
func (l *Lobby) Phase() Phase {
	switch {
	case l.StartedAt == nil:
		return PhaseForming
	case l.FinishedAt != nil:
		return PhaseFinished
	default:
		return PhaseInProgress
	}
}

// NextTurn returns the player whose turn follows the current one.
func (l *Lobby) NextTurn() (string, error) {
	idx := l.RoundIndex()
	if idx < 0 {
		return "", ErrGameNotStarted
	}
	if l.FinishedAt != nil || idx >= len(l.Sequence)-1 {
		return "", ErrGameAlreadyFinished
	}
	return l.Sequence[idx+1], nil
}

// LobbyPlayer is a membership row in lobby_players.
type LobbyPlayer struct {
	LobbyID   string    `json:"lobbyId"`
	PlayerID  string    `json:"playerId"`
	IsReady   bool      `json:"isReady"`
	Guesses   Guesses   `json:"guesses"`
	CreatedAt time.Time `json:"createdAt"`
}

// PlayerView is a membership row joined with the player's display name.
type PlayerView struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	IsReady  bool      `json:"isReady"`
	JoinedAt time.Time `json:"joinedAt"`
}

// PlayerSet is a set of player ids.
type PlayerSet map[string]struct{}

// NewPlayerSet builds a set from ids.
func NewPlayerSet(ids ...string) PlayerSet {
	s := make(PlayerSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s PlayerSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}
