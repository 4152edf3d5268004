// internal/handlers/lobby.go
package handlers

import (
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/grooveguessr/grooveguessr/internal/models"
)

type configureRequest struct {
	GuessingTime int `json:"guessingTime"`
}

type readyRequest struct {
	Ready bool `json:"ready"`
}

type contentRequest struct {
	Kind    string `json:"type"`
	Payload string `json:"data"`
}

type guessRequest struct {
	RoundIndex      *int   `json:"roundIndex"`
	GuessedPlayerID string `json:"guessedPlayerId"`
}

// CreateLobbyHandler creates a lobby hosted by the caller, creating a guest
// account first if needed.
func (s *APIServer) CreateLobbyHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, err := s.EnsureGuestUser(w, r)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	lobby, err := s.Lobbies.CreateLobby(r.Context(), userID)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	writeJSON(w, http.StatusCreated, lobby)
}

// ViewLobbyHandler refreshes the caller's presence, evicts disconnected
// players and returns the full lobby view. Clients poll it.
func (s *APIServer) ViewLobbyHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := s.EnsureGuestUser(w, r)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	view, err := s.Lobbies.View(r.Context(), ps.ByName("id"), userID)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *APIServer) JoinLobbyHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := s.EnsureGuestUser(w, r)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	lobby, err := s.Lobbies.JoinLobby(r.Context(), ps.ByName("id"), userID)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	writeJSON(w, http.StatusOK, lobby)
}

func (s *APIServer) ConfigureLobbyHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := s.requireUser(r)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	var req configureRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log(r), err)
		return
	}
	lobby, err := s.Lobbies.ConfigureLobby(r.Context(), ps.ByName("id"), userID, req.GuessingTime)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	writeJSON(w, http.StatusOK, lobby)
}

func (s *APIServer) SetReadyHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := s.requireUser(r)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	var req readyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log(r), err)
		return
	}
	if err := s.Lobbies.SetReady(r.Context(), ps.ByName("id"), userID, req.Ready); err != nil {
		writeError(w, s.log(r), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetContentHandler stores the caller's guessable item. Only "url" content
// is accepted for now.
func (s *APIServer) SetContentHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := s.requireUser(r)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	var req contentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log(r), err)
		return
	}
	if req.Kind == "" {
		req.Kind = models.ContentKindURL
	}
	if req.Kind != models.ContentKindURL {
		writeError(w, s.log(r), fmt.Errorf("%w: unsupported content type %q", models.ErrInvalidArgument, req.Kind))
		return
	}
	content, err := s.Lobbies.SetContent(r.Context(), ps.ByName("id"), userID, req.Kind, req.Payload)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (s *APIServer) StartGameHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := s.requireUser(r)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	lobby, err := s.Lobbies.StartGame(r.Context(), ps.ByName("id"), userID)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	writeJSON(w, http.StatusOK, lobby)
}

func (s *APIServer) ForwardHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := s.requireUser(r)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	lobby, err := s.Lobbies.Forward(r.Context(), ps.ByName("id"), userID)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	writeJSON(w, http.StatusOK, lobby)
}

func (s *APIServer) GuessHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := s.requireUser(r)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	var req guessRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log(r), err)
		return
	}
	if req.RoundIndex == nil {
		writeError(w, s.log(r), fmt.Errorf("%w: roundIndex is required", models.ErrInvalidArgument))
		return
	}
	if err := s.Lobbies.Guess(r.Context(), ps.ByName("id"), userID, *req.RoundIndex, req.GuessedPlayerID); err != nil {
		writeError(w, s.log(r), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) ListPlayersHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	players, err := s.Lobbies.ListPlayers(r.Context(), ps.ByName("id"))
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	writeJSON(w, http.StatusOK, players)
}

// CurrentContentHandler returns the item being guessed, or null before the
// game starts.
func (s *APIServer) CurrentContentHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	content, err := s.Lobbies.CurrentContent(r.Context(), ps.ByName("id"))
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (s *APIServer) GuessesHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := s.requireUser(r)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	guesses, err := s.Lobbies.GuessesFor(r.Context(), ps.ByName("id"), userID)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	if guesses == nil {
		guesses = models.Guesses{}
	}
	writeJSON(w, http.StatusOK, guesses)
}

// EventsHandler returns the persisted activity journal of a lobby. Events
// still queued for the historian are not included.
func (s *APIServer) EventsHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if s.Events == nil {
		writeError(w, s.log(r), fmt.Errorf("activity journal disabled: %w", models.ErrNotFound))
		return
	}
	events, err := s.Events.EventsFor(r.Context(), ps.ByName("id"))
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	if events == nil {
		events = []models.LobbyEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}
