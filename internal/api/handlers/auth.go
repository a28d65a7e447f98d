package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/nikhilbhutani/medtranslate/internal/apperr"
	"github.com/nikhilbhutani/medtranslate/internal/auth"
	"github.com/nikhilbhutani/medtranslate/internal/credential"
	"github.com/nikhilbhutani/medtranslate/internal/session"
)

type Credentials interface {
	Register(ctx context.Context, username, password string) error
	Verify(ctx context.Context, username, password string) (credential.Result, error)
}

type TokenIssuer interface {
	Issue(sessionID, username string) (string, time.Time, error)
}

type AuthHandler struct {
	creds    Credentials
	sessions session.Store
	tokens   TokenIssuer
}

func NewAuthHandler(creds Credentials, sessions session.Store, tokens TokenIssuer) *AuthHandler {
	return &AuthHandler{creds: creds, sessions: sessions, tokens: tokens}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.creds.Register(r.Context(), req.Username, req.Password); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user registered", "username", req.Username)
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

// Login verifies the credentials and opens a fresh pipeline session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.creds.Verify(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if result != credential.Authenticated {
		slog.Info("login rejected", "username", req.Username)
		writeError(w, r, apperr.ErrAuth)
		return
	}

	sess := session.New(req.Username)
	if err := h.sessions.Create(r.Context(), sess); err != nil {
		writeError(w, r, err)
		return
	}

	token, expires, err := h.tokens.Issue(sess.ID, sess.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user logged in", "username", sess.Username, "session_id", sess.ID)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, SessionID: sess.ID, ExpiresAt: expires})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, apperr.ErrAuth)
		return
	}

	if err := h.sessions.Delete(r.Context(), claims.SessionID()); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user logged out", "username", claims.Username(), "session_id", claims.SessionID())
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
