package models

import "time"

// ContentKindURL is the kind used for video links.
const ContentKindURL = "url"

// Content is the guessable item a player submitted to a lobby.
type Content struct {
	LobbyID   string    `json:"lobbyId"`
	PlayerID  string    `json:"playerId"`
	Kind      string    `json:"type"`
	Payload   string    `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
}
