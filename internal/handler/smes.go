package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"loanconnect/internal/models"
	"loanconnect/internal/store"
)

// SMEBackend registers and fetches SMEs on the lending API.
type SMEBackend interface {
	GetSME(ctx context.Context, id int64) (*models.SME, error)
	CreateSME(ctx context.Context, params models.CreateSMEParams) (*models.SME, error)
}

// SMEHandler handles SME registration and the cached SME profiles.
type SMEHandler struct {
	smes    *store.SMEStore
	backend SMEBackend
	logger  *zap.Logger
}

// NewSMEHandler creates a new SME handler.
func NewSMEHandler(smes *store.SMEStore, backend SMEBackend, logger *zap.Logger) *SMEHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMEHandler{smes: smes, backend: backend, logger: logger}
}

// Routes mounts the SME endpoints.
func (h *SMEHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
}

// List returns the cached SME profiles.
// GET /dashboard/smes
func (h *SMEHandler) List(w http.ResponseWriter, r *http.Request) {
	smes := h.smes.GetSMEs()
	if smes == nil {
		smes = []models.SME{}
	}
	JSON(w, http.StatusOK, smes)
}

// CreateSMERequest represents an SME registration request.
type CreateSMERequest struct {
	Name                  string `json:"name"`
	RegistrationNumber    string `json:"registration_number"`
	Country               string `json:"country"`
	Director              string `json:"director"`
	DIN                   string `json:"din"`
	RegisteredPhoneNumber string `json:"registered_phone_number"`
	BankAccountNumber     string `json:"bank_account_number"`
	BankID                int64  `json:"bank_id"`
}

// Create registers an SME on the backend and caches it as the selected SME.
// POST /dashboard/smes
func (h *SMEHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSMERequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	// Validate required fields
	if req.Name == "" || req.RegistrationNumber == "" || req.Country == "" {
		BadRequest(w, "name, registration_number, and country are required")
		return
	}

	if req.BankID == 0 {
		BadRequest(w, "bank_id is required")
		return
	}

	sme, err := h.backend.CreateSME(r.Context(), models.CreateSMEParams(req))
	if err != nil {
		h.logger.Error("create sme failed", zap.Error(err))
		BackendError(w, err)
		return
	}

	h.smes.AddSME(*sme)
	h.smes.SetSelectedSME(sme)
	JSON(w, http.StatusCreated, sme)
}

// Get returns an SME, fetching it from the backend when it is not cached.
// GET /dashboard/smes/{id}
func (h *SMEHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		BadRequest(w, "invalid SME ID")
		return
	}

	if sme, ok := h.smes.GetSME(id); ok {
		JSON(w, http.StatusOK, sme)
		return
	}

	sme, err := h.backend.GetSME(r.Context(), id)
	if err != nil {
		BackendError(w, err)
		return
	}

	h.smes.AddSME(*sme)
	JSON(w, http.StatusOK, sme)
}
