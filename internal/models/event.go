package models

// EventType names a lobby transition recorded in the activity journal.
type EventType string

const (
	EventCreated     EventType = "lobby_created"
	EventJoined      EventType = "player_joined"
	EventEvicted     EventType = "player_evicted"
	EventHostChanged EventType = "host_changed"
	EventDeleted     EventType = "lobby_deleted"
	EventConfigured  EventType = "lobby_configured"
	EventStarted     EventType = "game_started"
	EventForwarded   EventType = "turn_forwarded"
	EventFinished    EventType = "game_finished"
	EventGuessed     EventType = "guess_recorded"
)

// LobbyEvent holds the minimal info needed by the historian to persist a transition.
type LobbyEvent struct {
	LobbyID   string         `json:"lobby_id"`
	Type      EventType      `json:"type"`
	ActorID   string         `json:"actor_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp int64          `json:"timestamp"` // epoch millis
}
