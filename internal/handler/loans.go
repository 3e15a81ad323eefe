package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"loanconnect/internal/models"
	"loanconnect/internal/store"
)

// LoanHandler handles loan store endpoints.
type LoanHandler struct {
	loans *store.LoanStore
}

// NewLoanHandler creates a new loan handler.
func NewLoanHandler(loans *store.LoanStore) *LoanHandler {
	return &LoanHandler{loans: loans}
}

// Routes mounts the loan endpoints.
func (h *LoanHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/stats", h.Stats)
	r.Get("/export", h.Export)
	r.Get("/filters", h.GetFilters)
	r.Put("/filters", h.SetFilters)
	r.Delete("/filters", h.ClearFilters)
	r.Post("/delete", h.DeleteMany)
	r.Post("/status", h.UpdateManyStatus)
	r.Get("/selected", h.Selected)
	r.Put("/selected", h.Select)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/", h.Update)
		r.Delete("/", h.Delete)
		r.Post("/approve", h.Approve)
		r.Post("/reject", h.Reject)
		r.Post("/status", h.UpdateStatus)
		r.Post("/consent", h.UpdateConsent)
		r.Post("/insights", h.UpdateInsights)
	})
}

// List returns loans. ?q= searches, ?filtered=1 applies the stored filters.
// GET /dashboard/loans
func (h *LoanHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var loans []models.Loan
	switch {
	case q.Has("q"):
		loans = h.loans.SearchLoans(q.Get("q"))
	case q.Get("filtered") == "1" || q.Get("filtered") == "true":
		loans = h.loans.GetFilteredLoans()
	default:
		loans = h.loans.GetLoans()
	}
	if loans == nil {
		loans = []models.Loan{}
	}
	JSON(w, http.StatusOK, loans)
}

// CreateLoanRequest represents a loan creation request.
type CreateLoanRequest struct {
	Type            string     `json:"type"`
	Amount          string     `json:"amount"`
	Purpose         string     `json:"purpose"`
	Status          string     `json:"status"`
	ConsentStatus   string     `json:"consent_status"`
	InsightsStatus  string     `json:"insights_status"`
	InterestRateMin *float64   `json:"interest_rate_min,omitempty"`
	InterestRateMax *float64   `json:"interest_rate_max,omitempty"`
	Duration        int        `json:"duration"`
	LendingBankID   *int64     `json:"lending_bank_id,omitempty"`
	SMEID           *int64     `json:"sme_id,omitempty"`
	Country         string     `json:"country"`
	BankName        string     `json:"bank_name"`
	ApplicationDate *time.Time `json:"application_date,omitempty"`
	Notes           string     `json:"notes"`
}

// Create adds a loan.
// POST /dashboard/loans
func (h *LoanHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Amount) == "" {
		BadRequest(w, "amount is required")
		return
	}

	status := models.LoanStatus(req.Status)
	if status == "" {
		status = models.LoanStatusPending
	}

	loan := h.loans.AddLoan(models.NewLoanParams{
		Type:            req.Type,
		Amount:          req.Amount,
		Purpose:         req.Purpose,
		Status:          status,
		ConsentStatus:   models.ConsentStatus(req.ConsentStatus),
		InsightsStatus:  models.InsightsStatus(req.InsightsStatus),
		InterestRateMin: req.InterestRateMin,
		InterestRateMax: req.InterestRateMax,
		Duration:        req.Duration,
		LendingBankID:   req.LendingBankID,
		SMEID:           req.SMEID,
		Country:         req.Country,
		BankName:        req.BankName,
		ApplicationDate: req.ApplicationDate,
		Notes:           req.Notes,
	})

	JSON(w, http.StatusCreated, loan)
}

// Get returns a loan by ID.
// GET /dashboard/loans/{id}
func (h *LoanHandler) Get(w http.ResponseWriter, r *http.Request) {
	loan, ok := h.loans.GetLoan(chi.URLParam(r, "id"))
	if !ok {
		NotFound(w, "loan not found")
		return
	}

	JSON(w, http.StatusOK, loan)
}

// UpdateLoanRequest represents a loan update request.
type UpdateLoanRequest struct {
	Type            *string    `json:"type,omitempty"`
	Amount          *string    `json:"amount,omitempty"`
	Purpose         *string    `json:"purpose,omitempty"`
	Status          *string    `json:"status,omitempty"`
	ConsentStatus   *string    `json:"consent_status,omitempty"`
	InsightsStatus  *string    `json:"insights_status,omitempty"`
	InterestRateMin *float64   `json:"interest_rate_min,omitempty"`
	InterestRateMax *float64   `json:"interest_rate_max,omitempty"`
	Duration        *int       `json:"duration,omitempty"`
	LendingBankID   *int64     `json:"lending_bank_id,omitempty"`
	SMEID           *int64     `json:"sme_id,omitempty"`
	Country         *string    `json:"country,omitempty"`
	BankName        *string    `json:"bank_name,omitempty"`
	ApprovalDate    *time.Time `json:"approval_date,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
}

// Update merges fields into a loan.
// PATCH /dashboard/loans/{id}
func (h *LoanHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	params := models.UpdateLoanParams{
		Type:            req.Type,
		Amount:          req.Amount,
		Purpose:         req.Purpose,
		InterestRateMin: req.InterestRateMin,
		InterestRateMax: req.InterestRateMax,
		Duration:        req.Duration,
		LendingBankID:   req.LendingBankID,
		SMEID:           req.SMEID,
		Country:         req.Country,
		BankName:        req.BankName,
		ApprovalDate:    req.ApprovalDate,
		RejectionReason: req.RejectionReason,
		Notes:           req.Notes,
	}

	if req.Status != nil {
		status := models.LoanStatus(*req.Status)
		params.Status = &status
	}

	if req.ConsentStatus != nil {
		consent := models.ConsentStatus(*req.ConsentStatus)
		params.ConsentStatus = &consent
	}

	if req.InsightsStatus != nil {
		insights := models.InsightsStatus(*req.InsightsStatus)
		params.InsightsStatus = &insights
	}

	loan, ok := h.loans.UpdateLoan(chi.URLParam(r, "id"), params)
	if !ok {
		NotFound(w, "loan not found")
		return
	}

	JSON(w, http.StatusOK, loan)
}

// Delete removes a loan. Unknown IDs are not an error.
// DELETE /dashboard/loans/{id}
func (h *LoanHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.loans.DeleteLoan(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// IDsRequest lists loan IDs for bulk operations.
type IDsRequest struct {
	IDs    []string `json:"ids"`
	Status string   `json:"status,omitempty"`
}

// DeleteMany removes several loans.
// POST /dashboard/loans/delete
func (h *LoanHandler) DeleteMany(w http.ResponseWriter, r *http.Request) {
	var req IDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	h.loans.DeleteMultipleLoans(req.IDs)
	w.WriteHeader(http.StatusNoContent)
}

// UpdateManyStatus sets one status on several loans.
// POST /dashboard/loans/status
func (h *LoanHandler) UpdateManyStatus(w http.ResponseWriter, r *http.Request) {
	var req IDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Status == "" {
		BadRequest(w, "status is required")
		return
	}

	h.loans.UpdateMultipleLoanStatus(req.IDs, models.LoanStatus(req.Status))
	w.WriteHeader(http.StatusNoContent)
}

// ApproveRequest represents a loan approval.
type ApproveRequest struct {
	ApprovalDate *time.Time `json:"approval_date,omitempty"`
}

// Approve marks a loan approved.
// POST /dashboard/loans/{id}/approve
func (h *LoanHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := decode(r, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	loan, ok := h.loans.ApproveLoan(chi.URLParam(r, "id"), req.ApprovalDate)
	if !ok {
		NotFound(w, "loan not found")
		return
	}

	JSON(w, http.StatusOK, loan)
}

// RejectRequest represents a loan rejection.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// Reject marks a loan rejected.
// POST /dashboard/loans/{id}/reject
func (h *LoanHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if err := decode(r, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	loan, ok := h.loans.RejectLoan(chi.URLParam(r, "id"), req.Reason)
	if !ok {
		NotFound(w, "loan not found")
		return
	}

	JSON(w, http.StatusOK, loan)
}

// StatusRequest sets one of the status fields of a loan.
type StatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

// UpdateStatus sets the loan status.
// POST /dashboard/loans/{id}/status
func (h *LoanHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeStatus(w, r)
	if !ok {
		return
	}

	loan, ok := h.loans.UpdateLoanStatus(chi.URLParam(r, "id"), models.LoanStatus(req.Status), req.Notes)
	if !ok {
		NotFound(w, "loan not found")
		return
	}

	JSON(w, http.StatusOK, loan)
}

// UpdateConsent sets the consent status.
// POST /dashboard/loans/{id}/consent
func (h *LoanHandler) UpdateConsent(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeStatus(w, r)
	if !ok {
		return
	}

	loan, ok := h.loans.UpdateConsentStatus(chi.URLParam(r, "id"), models.ConsentStatus(req.Status), req.Notes)
	if !ok {
		NotFound(w, "loan not found")
		return
	}

	JSON(w, http.StatusOK, loan)
}

// UpdateInsights sets the insights status.
// POST /dashboard/loans/{id}/insights
func (h *LoanHandler) UpdateInsights(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeStatus(w, r)
	if !ok {
		return
	}

	loan, ok := h.loans.UpdateInsightsStatus(chi.URLParam(r, "id"), models.InsightsStatus(req.Status))
	if !ok {
		NotFound(w, "loan not found")
		return
	}

	JSON(w, http.StatusOK, loan)
}

func decodeStatus(w http.ResponseWriter, r *http.Request) (StatusRequest, bool) {
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return req, false
	}
	if req.Status == "" {
		BadRequest(w, "status is required")
		return req, false
	}
	return req, true
}

// Stats returns aggregate counts.
// GET /dashboard/loans/stats
func (h *LoanHandler) Stats(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.loans.GetLoanStats())
}

// Export downloads the whole collection.
// GET /dashboard/loans/export?format=json|csv
func (h *LoanHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := models.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = models.ExportFormatJSON
	}

	body, err := h.loans.ExportLoans(format)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	contentType := "application/json"
	if format == models.ExportFormatCSV {
		contentType = "text/csv"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="loans.`+string(format)+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

// GetFilters returns the stored filters.
// GET /dashboard/loans/filters
func (h *LoanHandler) GetFilters(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.loans.LoanFilters())
}

// SetFilters merges the given dimensions into the stored filters.
// PUT /dashboard/loans/filters
func (h *LoanHandler) SetFilters(w http.ResponseWriter, r *http.Request) {
	var req models.LoanFilters
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	h.loans.SetLoanFilters(req)
	JSON(w, http.StatusOK, h.loans.LoanFilters())
}

// ClearFilters resets the stored filters.
// DELETE /dashboard/loans/filters
func (h *LoanHandler) ClearFilters(w http.ResponseWriter, r *http.Request) {
	h.loans.ClearLoanFilters()
	JSON(w, http.StatusOK, h.loans.LoanFilters())
}

// SelectRequest picks the loan shown in detail views.
type SelectRequest struct {
	ID string `json:"id"`
}

// Selected returns the selected loan.
// GET /dashboard/loans/selected
func (h *LoanHandler) Selected(w http.ResponseWriter, r *http.Request) {
	loan, ok := h.loans.SelectedLoan()
	if !ok {
		NotFound(w, "no loan selected")
		return
	}

	JSON(w, http.StatusOK, loan)
}

// Select sets the selected loan. An empty ID clears the selection.
// PUT /dashboard/loans/selected
func (h *LoanHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	h.loans.SetSelectedLoan(req.ID)
	loan, ok := h.loans.SelectedLoan()
	if !ok {
		JSON(w, http.StatusOK, nil)
		return
	}

	JSON(w, http.StatusOK, loan)
}
