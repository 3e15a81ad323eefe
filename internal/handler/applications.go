package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"loanconnect/internal/auth"
	"loanconnect/internal/models"
)

// Lister builds the application tables.
type Lister interface {
	SMEApplications(ctx context.Context, smeID int64) ([]models.Application, error)
	BankApplications(ctx context.Context, bankID int64) ([]models.Application, error)
}

// ApplicationHandler serves the applications table of the signed-in user.
type ApplicationHandler struct {
	lister Lister
	logger *zap.Logger
}

// NewApplicationHandler creates a new application handler.
func NewApplicationHandler(lister Lister, logger *zap.Logger) *ApplicationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationHandler{lister: lister, logger: logger}
}

// List returns the SME or bank view depending on who is signed in.
// GET /dashboard/applications
func (h *ApplicationHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFrom(r.Context())
	if !ok {
		Unauthorized(w, "not signed in")
		return
	}

	if user.EntityID == nil {
		Forbidden(w, "registration is not complete")
		return
	}

	var (
		rows []models.Application
		err  error
	)
	switch {
	case user.IsSME():
		rows, err = h.lister.SMEApplications(r.Context(), *user.EntityID)
	case user.IsBank():
		rows, err = h.lister.BankApplications(r.Context(), *user.EntityID)
	default:
		Forbidden(w, "registration is not complete")
		return
	}

	if err != nil {
		h.logger.Error("list applications failed",
			zap.String("entity_type", string(user.EntityType)),
			zap.Int64("entity_id", *user.EntityID),
			zap.Error(err),
		)
		BackendError(w, err)
		return
	}

	JSON(w, http.StatusOK, rows)
}
