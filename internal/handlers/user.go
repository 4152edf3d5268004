package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/grooveguessr/grooveguessr/internal/auth"
	"github.com/grooveguessr/grooveguessr/internal/models"
)

const guestName = "Guest"

// requireUser returns the user id carried by the session token.
func (s *APIServer) requireUser(r *http.Request) (string, error) {
	token := auth.TokenFromRequest(r)
	if token == "" {
		return "", errUnauthenticated
	}
	userID, err := auth.AuthenticateJWT(token)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errUnauthenticated, err)
	}
	return userID, nil
}

// EnsureGuestUser returns the caller's user id. A request without a valid
// session gets a fresh ephemeral user and a session cookie, so players can
// join a lobby straight from a shared link.
func (s *APIServer) EnsureGuestUser(w http.ResponseWriter, r *http.Request) (string, error) {
	if userID, err := s.requireUser(r); err == nil {
		return userID, nil
	}

	guest := models.User{Name: guestName, IsEphemeral: true}
	if err := s.Users.CreateUser(r.Context(), &guest); err != nil {
		return "", fmt.Errorf("failed to create ephemeral user: %w", err)
	}
	token, err := auth.CreateJWT(guest.ID)
	if err != nil {
		return "", fmt.Errorf("failed to create ephemeral JWT: %w", err)
	}
	auth.SetSessionCookie(w, token)
	s.log(r).WithField("user", guest.ID).Debug("created guest user")
	return guest.ID, nil
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// CreateUserHandler registers a permanent account and signs it in.
func (s *APIServer) CreateUserHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log(r), err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Password == "" {
		writeError(w, s.log(r), fmt.Errorf("%w: email and password are required", models.ErrInvalidArgument))
		return
	}
	if req.Name == "" {
		req.Name = req.Email
	}

	user := models.User{Email: req.Email, Password: req.Password, Name: req.Name}
	if err := s.Users.CreateUser(r.Context(), &user); err != nil {
		writeError(w, s.log(r), err)
		return
	}

	token, err := auth.CreateJWT(user.ID)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	auth.SetSessionCookie(w, token)
	writeJSON(w, http.StatusCreated, loginResponse{Token: token, User: &user})
}

// LoginHandler exchanges credentials for a session token, returned in the
// body and the session cookie.
func (s *APIServer) LoginHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log(r), err)
		return
	}

	user, err := s.Users.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		s.log(r).WithError(err).Info("failed to authenticate user")
		// unknown email and wrong password look the same to the client
		writeError(w, s.log(r), fmt.Errorf("authentication failed: %w", models.ErrUnauthorized))
		return
	}

	token, err := auth.CreateJWT(user.ID)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	auth.SetSessionCookie(w, token)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

// RenameUserHandler sets the caller's display name.
func (s *APIServer) RenameUserHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, err := s.requireUser(r)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log(r), err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 64 {
		writeError(w, s.log(r), fmt.Errorf("%w: name must be 1-64 characters", models.ErrInvalidArgument))
		return
	}
	if err := s.Users.RenameUser(r.Context(), userID, name); err != nil {
		writeError(w, s.log(r), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MeHandler returns the caller's account.
func (s *APIServer) MeHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, err := s.requireUser(r)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	user, err := s.Users.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, s.log(r), err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
