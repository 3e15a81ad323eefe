package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"loanconnect/internal/auth"
	"loanconnect/internal/consent"
	"loanconnect/internal/upload"
	"loanconnect/internal/wizard"
)

// WizardHandler handles the loan application wizard endpoints.
type WizardHandler struct {
	wizard *wizard.Wizard
	logger *zap.Logger
}

// NewWizardHandler creates a new wizard handler.
func NewWizardHandler(w *wizard.Wizard, logger *zap.Logger) *WizardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WizardHandler{wizard: w, logger: logger}
}

// Routes mounts the wizard endpoints.
func (h *WizardHandler) Routes(r chi.Router) {
	r.Use(h.applicant)

	r.Get("/", h.State)
	r.Post("/proceed", h.Proceed)
	r.Put("/details", h.Details)
	r.Post("/continue", h.Continue)
	r.Post("/back", h.Back)
	r.Post("/consent/accounts", h.ToggleAccount)
	r.Post("/consent/otp", h.ApproveConsent)
	r.Post("/consent/reject", h.RejectConsent)
	r.Post("/uploads", h.Upload)
	r.Delete("/uploads/{id}", h.RemoveUpload)
	r.Post("/submit", h.Submit)
}

// applicant records the signed-in SME as the applicant.
func (h *WizardHandler) applicant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, ok := auth.UserFrom(r.Context()); ok && user.IsSME() && user.EntityID != nil {
			h.wizard.SetApplicant(*user.EntityID)
		}
		next.ServeHTTP(w, r)
	})
}

// State returns the wizard snapshot.
// GET /dashboard/apply-loan
func (h *WizardHandler) State(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.wizard.State())
}

// Proceed leaves the start screen.
// POST /dashboard/apply-loan/proceed
func (h *WizardHandler) Proceed(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.wizard.Proceed(r.Context()))
}

// DetailsRequest updates the loan details form. Absent fields are left as they are.
type DetailsRequest struct {
	FinancingType *string `json:"financingType,omitempty"`
	Country       *string `json:"country,omitempty"`
	BankID        *int64  `json:"bankId,omitempty"`
	Amount        *string `json:"amount,omitempty"`
}

// Details fills the loan details form. Fields are applied in form order so a
// country and one of its banks can be set in one request.
// PUT /dashboard/apply-loan/details
func (h *WizardHandler) Details(w http.ResponseWriter, r *http.Request) {
	var req DetailsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	var err error
	if req.FinancingType != nil {
		err = h.wizard.SelectFinancingType(*req.FinancingType)
	}
	if err == nil && req.Country != nil {
		err = h.wizard.SelectCountry(r.Context(), *req.Country)
	}
	if err == nil && req.BankID != nil {
		err = h.wizard.SelectBank(*req.BankID)
	}
	if err == nil && req.Amount != nil {
		err = h.wizard.SetAmount(*req.Amount)
	}
	h.respond(w, err)
}

// Continue saves the draft and moves to consent.
// POST /dashboard/apply-loan/continue
func (h *WizardHandler) Continue(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.wizard.Continue(r.Context()))
}

// Back moves one step backwards.
// POST /dashboard/apply-loan/back
func (h *WizardHandler) Back(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.wizard.Back())
}

// AccountRequest toggles a linked bank account.
type AccountRequest struct {
	ID int64 `json:"id"`
}

// ToggleAccount flips the selection of a linked account.
// POST /dashboard/apply-loan/consent/accounts
func (h *WizardHandler) ToggleAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	dialog, err := h.wizard.Consent()
	if err != nil {
		h.fail(w, err)
		return
	}
	dialog.ToggleAccount(req.ID)
	JSON(w, http.StatusOK, dialog.View())
}

// OTPRequest confirms consent.
type OTPRequest struct {
	OTP string `json:"otp"`
}

// ApproveConsent submits the OTP. The response is sent after the simulated delay.
// POST /dashboard/apply-loan/consent/otp
func (h *WizardHandler) ApproveConsent(w http.ResponseWriter, r *http.Request) {
	var req OTPRequest
	if err := decode(r, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	h.respond(w, h.wizard.ApproveConsent(r.Context(), req.OTP))
}

// ConsentRejectRequest carries the optional rejection notes.
type ConsentRejectRequest struct {
	Notes string `json:"notes"`
}

// RejectConsent records the rejection and returns to the details form.
// POST /dashboard/apply-loan/consent/reject
func (h *WizardHandler) RejectConsent(w http.ResponseWriter, r *http.Request) {
	var req ConsentRejectRequest
	if err := decode(r, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	h.respond(w, h.wizard.RejectConsent(req.Notes))
}

// UploadRequest describes files to stage without their content.
type UploadRequest struct {
	Files []upload.Candidate `json:"files"`
}

// UploadResponse reports accepted and rejected files.
type UploadResponse struct {
	Accepted []upload.File `json:"accepted"`
	Rejected []ErrorInfo   `json:"rejected"`
}

// Upload stages files. It accepts a JSON list of name/size pairs or a
// multipart form whose parts are read and discarded.
// POST /dashboard/apply-loan/uploads
func (h *WizardHandler) Upload(w http.ResponseWriter, r *http.Request) {
	stager, err := h.wizard.Uploads()
	if err != nil {
		h.fail(w, err)
		return
	}

	candidates, err := readCandidates(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	if len(candidates) == 0 {
		BadRequest(w, "no files given")
		return
	}

	accepted, errs := stager.Add(candidates...)
	resp := UploadResponse{
		Accepted: accepted,
		Rejected: make([]ErrorInfo, 0, len(errs)),
	}
	if resp.Accepted == nil {
		resp.Accepted = []upload.File{}
	}
	for _, err := range errs {
		resp.Rejected = append(resp.Rejected, ErrorInfo{Code: uploadErrorCode(err), Message: err.Error()})
	}

	status := http.StatusAccepted
	if len(accepted) == 0 {
		status = http.StatusUnprocessableEntity
	}
	JSON(w, status, resp)
}

func readCandidates(r *http.Request) ([]upload.Candidate, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req UploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, errors.New("invalid request body")
		}
		return req.Files, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errors.New("invalid multipart body")
	}

	var candidates []upload.Candidate
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return candidates, nil
		}
		if err != nil {
			return nil, errors.New("invalid multipart body")
		}
		name := part.FileName()
		if name == "" {
			part.Close()
			continue
		}
		// Oversized files are counted only up to one byte past the limit.
		n, err := io.Copy(io.Discard, io.LimitReader(part, upload.MaxFileSize+1))
		part.Close()
		if err != nil {
			return nil, errors.New("invalid multipart body")
		}
		candidates = append(candidates, upload.Candidate{Name: name, Size: n})
	}
}

func uploadErrorCode(err error) string {
	switch {
	case errors.Is(err, upload.ErrInvalidType):
		return "INVALID_TYPE"
	case errors.Is(err, upload.ErrTooLarge):
		return "TOO_LARGE"
	case errors.Is(err, upload.ErrDuplicate):
		return "DUPLICATE"
	default:
		return "BAD_REQUEST"
	}
}

// RemoveUpload drops a staged file.
// DELETE /dashboard/apply-loan/uploads/{id}
func (h *WizardHandler) RemoveUpload(w http.ResponseWriter, r *http.Request) {
	stager, err := h.wizard.Uploads()
	if err != nil {
		h.fail(w, err)
		return
	}

	if !stager.Remove(chi.URLParam(r, "id")) {
		NotFound(w, "file not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Submit sends the application and waits for the submission sequence.
// POST /dashboard/apply-loan/submit
func (h *WizardHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if err := h.wizard.Submit(r.Context()); err != nil {
		h.fail(w, err)
		return
	}

	st := h.wizard.State()
	JSON(w, http.StatusOK, st)
}

func (h *WizardHandler) respond(w http.ResponseWriter, err error) {
	if err != nil {
		h.fail(w, err)
		return
	}
	JSON(w, http.StatusOK, h.wizard.State())
}

func (h *WizardHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, wizard.ErrInvalidTransition):
		Error(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, wizard.ErrUploadsPending),
		errors.Is(err, wizard.ErrSubmitting),
		errors.Is(err, wizard.ErrNoDraft),
		errors.Is(err, consent.ErrSubmitting):
		Conflict(w, err.Error())
	case errors.Is(err, wizard.ErrIncomplete),
		errors.Is(err, wizard.ErrUnknownFinancingType),
		errors.Is(err, wizard.ErrUnknownCountry),
		errors.Is(err, wizard.ErrUnknownBank),
		errors.Is(err, consent.ErrNoAccount),
		errors.Is(err, consent.ErrCodeInvalid):
		BadRequest(w, err.Error())
	case errors.Is(err, wizard.ErrSubmitFailed):
		h.logger.Error("submit loan failed", zap.Error(err))
		BackendError(w, err)
	default:
		h.logger.Error("wizard operation failed", zap.Error(err))
		InternalError(w, "wizard operation failed")
	}
}
