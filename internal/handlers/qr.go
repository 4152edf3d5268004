package handlers

import (
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320 // mobile-friendly size

// joinURL is the link encoded in a lobby's QR code.
func (s *APIServer) joinURL(r *http.Request, lobbyID string) string {
	base := strings.TrimSuffix(s.BaseURL, "/")
	if base == "" {
		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/lobby/" + lobbyID
}

// QRHandler renders the lobby join link as a PNG.
func (s *APIServer) QRHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	lobbyID := ps.ByName("id")
	if _, err := s.Lobbies.ListPlayers(r.Context(), lobbyID); err != nil {
		writeError(w, s.log(r), err)
		return
	}

	png, err := qrcode.Encode(s.joinURL(r, lobbyID), qrcode.Medium, qrSize)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(png)
}
