// internal/handlers/lobby_ws.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/grooveguessr/grooveguessr/internal/middleware"
	"github.com/grooveguessr/grooveguessr/internal/models"
)

const (
	presenceSubprotocol = "presence"

	// Custom close codes for the presence socket.
	BadSubprotocolError = 3000 // client did not negotiate the presence subprotocol
	InvalidLobbyIDError = 3003 // lobby does not exist or was closed

	wsWriteTimeout = 10 * time.Second
)

// LobbyWSHandler upgrades to a socket on which every text frame from the
// client counts as a heartbeat. Each one is answered with the current lobby
// view. The server never sends a frame that was not asked for.
func (s *APIServer) LobbyWSHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	lobbyID := ps.ByName("id")
	log := s.log(r).WithField("lobby", lobbyID)

	// guest cookies must be set before the upgrade writes headers
	userID, err := s.EnsureGuestUser(w, r)
	if err != nil {
		writeError(w, log, err)
		return
	}

	origins := s.OriginPatterns
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{presenceSubprotocol},
		OriginPatterns: origins,
	})
	if err != nil {
		log.WithError(err).Warn("websocket accept error")
		return
	}
	defer c.CloseNow()

	if c.Subprotocol() != presenceSubprotocol {
		c.Close(BadSubprotocolError, "client must speak the presence subprotocol")
		return
	}

	log = log.WithField("player", userID)
	middleware.LogWebSocketConnect(log, r.RemoteAddr, r.URL.Path)

	limiter := rate.NewLimiter(rate.Every(100*time.Millisecond), 10)
	for {
		err = s.presenceRound(r.Context(), c, limiter, lobbyID, userID, log)
		if err == nil {
			continue
		}
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			err = nil
		}
		middleware.LogWebSocketDisconnect(log, r.RemoteAddr, r.URL.Path, err)
		return
	}
}

// presenceRound waits for one client frame and answers it.
func (s *APIServer) presenceRound(ctx context.Context, c *websocket.Conn, l *rate.Limiter, lobbyID, userID string, log logrus.FieldLogger) error {
	if err := l.Wait(ctx); err != nil {
		return err
	}

	typ, _, err := c.Read(ctx)
	if err != nil {
		return err
	}
	if typ != websocket.MessageText {
		log.WithField("type", typ).Debug("ignoring non-text frame")
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()

	view, err := s.Lobbies.View(ctx, lobbyID, userID)
	if err != nil {
		_, body := errorBody(log, err)
		if werr := wsjson.Write(writeCtx, c, body); werr != nil {
			return werr
		}
		if errors.Is(err, models.ErrNotFound) {
			c.Close(InvalidLobbyIDError, "lobby does not exist")
			return err
		}
		// infra errors are transient; the client keeps polling
		return nil
	}
	return wsjson.Write(writeCtx, c, view)
}
