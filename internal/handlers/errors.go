// internal/handlers/errors.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/grooveguessr/grooveguessr/internal/models"
)

// errUnauthenticated is returned when a route needs a session and the
// request carries none.
var errUnauthenticated = errors.New("missing or invalid session")

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{errUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{models.ErrNotFound, http.StatusNotFound, "not_found"},
	{models.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{models.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
	{models.ErrGameAlreadyStarted, http.StatusConflict, "game_already_started"},
	{models.ErrGameNotStarted, http.StatusConflict, "game_not_started"},
	{models.ErrGameAlreadyFinished, http.StatusConflict, "game_already_finished"},
	{models.ErrNotEnoughPlayers, http.StatusConflict, "not_enough_players"},
	{models.ErrNotEveryoneHasContent, http.StatusConflict, "not_everyone_has_content"},
	{models.ErrLobbyFrozen, http.StatusConflict, "lobby_frozen"},
	{models.ErrConflict, http.StatusConflict, "conflict"},
	{models.ErrStorageUnavailable, http.StatusServiceUnavailable, "storage_unavailable"},
	{models.ErrCacheUnavailable, http.StatusServiceUnavailable, "cache_unavailable"},
}

// statusFor maps an error onto an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// errorBody maps err to its status and client-facing body. Server-side
// failures are logged and their details hidden from the client.
func errorBody(log logrus.FieldLogger, err error) (int, errorResponse) {
	status, code := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	return status, errorResponse{Error: code, Message: msg}
}

func writeError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	status, body := errorBody(log, err)
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads the request body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: malformed body: %w", models.ErrInvalidArgument, err)
}
