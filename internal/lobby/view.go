package lobby

import "github.com/grooveguessr/grooveguessr/internal/models"

// LobbyView is everything a client needs to render a lobby in one response.
type LobbyView struct {
	*models.Lobby

	Phase          models.Phase        `json:"phase"`
	RoundIndex     *int                `json:"roundIndex"`
	Players        []models.PlayerView `json:"players"`
	Content        *models.Content     `json:"content"`
	CurrentContent *models.Content     `json:"currentContent"`
	Guesses        models.Guesses      `json:"guesses"`
	HostAway       bool                `json:"hostAway"`
}
