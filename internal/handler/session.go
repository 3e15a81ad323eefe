package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"loanconnect/internal/backend"
	"loanconnect/internal/models"
)

// SessionBackend is the auth part of the lending API.
type SessionBackend interface {
	Me(ctx context.Context) (*models.User, error)
	Logout(ctx context.Context) error
}

// SessionHandler exposes the signed-in user and sign-out.
type SessionHandler struct {
	backend SessionBackend
	logger  *zap.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(b SessionBackend, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{backend: b, logger: logger}
}

// Me returns the user of the browser session.
// GET /auth/me
func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := backend.WithCookies(r.Context(), r.Cookies())
	user, err := h.backend.Me(ctx)
	if err != nil {
		BackendError(w, err)
		return
	}

	JSON(w, http.StatusOK, user)
}

// Logout ends the browser session.
// POST /auth/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := backend.WithCookies(r.Context(), r.Cookies())
	if err := h.backend.Logout(ctx); err != nil {
		h.logger.Warn("logout failed", zap.Error(err))
		BackendError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
