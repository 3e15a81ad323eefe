package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanconnect/internal/auth"
	"loanconnect/internal/backend"
	"loanconnect/internal/models"
	"loanconnect/internal/storage"
	"loanconnect/internal/store"
)

func serve(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// envelope decodes a response and unmarshals its data into v.
func envelope(t *testing.T, w *httptest.ResponseRecorder, v any) Response {
	t.Helper()
	var raw struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *ErrorInfo      `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw), w.Body.String())
	if v != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, v))
	}
	return Response{Success: raw.Success, Error: raw.Error}
}

func newLoanRouter(t *testing.T) (chi.Router, *store.LoanStore) {
	t.Helper()
	loans := store.NewLoanStore(storage.NewMemory())
	require.NoError(t, loans.Hydrate(context.Background()))

	r := chi.NewRouter()
	r.Route("/dashboard/loans", NewLoanHandler(loans).Routes)
	return r, loans
}

func TestLoanHandlerCRUD(t *testing.T) {
	r, loans := newLoanRouter(t)

	w := serve(t, r, http.MethodPost, "/dashboard/loans", map[string]any{
		"type": "Trade Financing", "amount": "50000", "country": "India", "bank_name": "ICICI Bank",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.Loan
	resp := envelope(t, w, &created)
	assert.True(t, resp.Success)
	assert.Equal(t, models.LoanStatusPending, created.Status)
	assert.NotEmpty(t, created.ID)

	w = serve(t, r, http.MethodGet, "/dashboard/loans/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(t, r, http.MethodPatch, "/dashboard/loans/"+created.ID, map[string]any{
		"amount": "65000", "consent_status": "approved",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var updated models.Loan
	envelope(t, w, &updated)
	assert.Equal(t, "65000", updated.Amount)
	assert.Equal(t, models.ConsentStatusApproved, updated.ConsentStatus)
	assert.Equal(t, "India", updated.Country, "untouched fields are kept")

	w = serve(t, r, http.MethodPatch, "/dashboard/loans/missing", map[string]any{"amount": "1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(t, r, http.MethodPost, "/dashboard/loans/"+created.ID+"/reject", map[string]any{"reason": "incomplete documents"})
	require.Equal(t, http.StatusOK, w.Code)
	envelope(t, w, &updated)
	assert.Equal(t, models.LoanStatusRejected, updated.Status)
	assert.Equal(t, "incomplete documents", updated.RejectionReason)

	w = serve(t, r, http.MethodPost, "/dashboard/loans/"+created.ID+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code)
	envelope(t, w, &updated)
	assert.Equal(t, models.LoanStatusApproved, updated.Status)
	assert.NotNil(t, updated.ApprovalDate)

	w = serve(t, r, http.MethodDelete, "/dashboard/loans/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, loans.GetLoans())

	w = serve(t, r, http.MethodDelete, "/dashboard/loans/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code, "deleting twice is not an error")
}

func TestLoanHandlerCreateValidation(t *testing.T) {
	r, _ := newLoanRouter(t)

	w := serve(t, r, http.MethodPost, "/dashboard/loans", map[string]any{"type": "Other"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := envelope(t, w, nil)
	assert.False(t, resp.Success)
	assert.Equal(t, "BAD_REQUEST", resp.Error.Code)

	req := httptest.NewRequest(http.MethodPost, "/dashboard/loans", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoanHandlerQueries(t *testing.T) {
	r, loans := newLoanRouter(t)
	a := loans.AddLoan(models.NewLoanParams{Amount: "50000", Status: models.LoanStatusPending, Country: "India", BankName: "ICICI Bank"})
	b := loans.AddLoan(models.NewLoanParams{Amount: "150000", Status: models.LoanStatusApproved, Country: "Singapore", BankName: "DBS Bank"})

	var stats models.LoanStats
	envelope(t, serve(t, r, http.MethodGet, "/dashboard/loans/stats", nil), &stats)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Approved)
	assert.Equal(t, 200000.0, stats.TotalAmount)

	var found []models.Loan
	envelope(t, serve(t, r, http.MethodGet, "/dashboard/loans?q=dbs", nil), &found)
	require.Len(t, found, 1)
	assert.Equal(t, b.ID, found[0].ID)

	w := serve(t, r, http.MethodPut, "/dashboard/loans/filters", map[string]any{"country": []string{"India"}})
	require.Equal(t, http.StatusOK, w.Code)
	envelope(t, serve(t, r, http.MethodGet, "/dashboard/loans?filtered=1", nil), &found)
	require.Len(t, found, 1)
	assert.Equal(t, a.ID, found[0].ID)

	envelope(t, serve(t, r, http.MethodGet, "/dashboard/loans", nil), &found)
	assert.Len(t, found, 2, "unfiltered list ignores filters")

	serve(t, r, http.MethodDelete, "/dashboard/loans/filters", nil)
	envelope(t, serve(t, r, http.MethodGet, "/dashboard/loans?filtered=1", nil), &found)
	assert.Len(t, found, 2)

	for _, path := range []string{"/dashboard/loans?q=zzz", "/dashboard/loans?filtered=1"} {
		if path == "/dashboard/loans?filtered=1" {
			serve(t, r, http.MethodPut, "/dashboard/loans/filters", map[string]any{"country": []string{"Peru"}})
		}
		w = serve(t, r, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true,"data":[]}`, w.Body.String(), path)
	}
	serve(t, r, http.MethodDelete, "/dashboard/loans/filters", nil)

	w = serve(t, r, http.MethodPost, "/dashboard/loans/status", map[string]any{"ids": []string{a.ID, b.ID}, "status": "under_review"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	for _, l := range loans.GetLoans() {
		assert.Equal(t, models.LoanStatusUnderReview, l.Status)
	}

	w = serve(t, r, http.MethodPut, "/dashboard/loans/selected", map[string]any{"id": a.ID})
	require.Equal(t, http.StatusOK, w.Code)
	var selected models.Loan
	envelope(t, serve(t, r, http.MethodGet, "/dashboard/loans/selected", nil), &selected)
	assert.Equal(t, a.ID, selected.ID)

	w = serve(t, r, http.MethodPost, "/dashboard/loans/delete", map[string]any{"ids": []string{a.ID, b.ID}})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, loans.GetLoans())
	assert.Equal(t, http.StatusNotFound, serve(t, r, http.MethodGet, "/dashboard/loans/selected", nil).Code)
}

func TestLoanHandlerExport(t *testing.T) {
	r, loans := newLoanRouter(t)
	loans.AddLoan(models.NewLoanParams{Amount: "1000", Status: models.LoanStatusPending, BankName: "Bank, Ltd"})

	w := serve(t, r, http.MethodGet, "/dashboard/loans/export?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "loans.csv")
	assert.Contains(t, w.Body.String(), `"Bank, Ltd"`)

	w = serve(t, r, http.MethodGet, "/dashboard/loans/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var exported []models.Loan
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exported))
	assert.Len(t, exported, 1)

	w = serve(t, r, http.MethodGet, "/dashboard/loans/export?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type fakeLister struct {
	smeID, bankID int64
	err           error
}

func (f *fakeLister) SMEApplications(ctx context.Context, smeID int64) ([]models.Application, error) {
	f.smeID = smeID
	return []models.Application{{LoanID: 1, BankName: "ICICI Bank"}}, f.err
}

func (f *fakeLister) BankApplications(ctx context.Context, bankID int64) ([]models.Application, error) {
	f.bankID = bankID
	return []models.Application{{LoanID: 2, SMEName: "Acme Exports"}}, f.err
}

func TestApplicationHandler(t *testing.T) {
	entity := int64(5)

	listFor := func(user *models.User, lister Lister) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/dashboard/applications", nil)
		if user != nil {
			req = req.WithContext(auth.WithUser(req.Context(), user))
		}
		w := httptest.NewRecorder()
		NewApplicationHandler(lister, nil).List(w, req)
		return w
	}

	t.Run("sme", func(t *testing.T) {
		lister := &fakeLister{}
		w := listFor(&models.User{EntityType: models.EntityTypeSME, EntityID: &entity}, lister)
		require.Equal(t, http.StatusOK, w.Code)
		var rows []models.Application
		envelope(t, w, &rows)
		assert.Equal(t, "ICICI Bank", rows[0].BankName)
		assert.Equal(t, entity, lister.smeID)
	})

	t.Run("bank", func(t *testing.T) {
		lister := &fakeLister{}
		w := listFor(&models.User{EntityType: models.EntityTypeBank, EntityID: &entity}, lister)
		require.Equal(t, http.StatusOK, w.Code)
		var rows []models.Application
		envelope(t, w, &rows)
		assert.Equal(t, "Acme Exports", rows[0].SMEName)
		assert.Equal(t, entity, lister.bankID)
	})

	t.Run("unregistered", func(t *testing.T) {
		w := listFor(&models.User{}, &fakeLister{})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("anonymous", func(t *testing.T) {
		w := listFor(nil, &fakeLister{})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("backend failure", func(t *testing.T) {
		lister := &fakeLister{err: &backend.APIError{StatusCode: http.StatusUnauthorized}}
		w := listFor(&models.User{EntityType: models.EntityTypeSME, EntityID: &entity}, lister)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		lister.err = errors.New("connection refused")
		w = listFor(&models.User{EntityType: models.EntityTypeSME, EntityID: &entity}, lister)
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

type fakeSMEBackend struct {
	created *models.CreateSMEParams
}

func (f *fakeSMEBackend) GetSME(ctx context.Context, id int64) (*models.SME, error) {
	if id == 9 {
		return &models.SME{ID: 9, Name: "Remote SME"}, nil
	}
	return nil, &backend.APIError{StatusCode: http.StatusNotFound}
}

func (f *fakeSMEBackend) CreateSME(ctx context.Context, params models.CreateSMEParams) (*models.SME, error) {
	f.created = &params
	return &models.SME{ID: 3, Name: params.Name, BankID: params.BankID}, nil
}

func TestSMEHandler(t *testing.T) {
	smes := store.NewSMEStore(storage.NewMemory())
	require.NoError(t, smes.Hydrate(context.Background()))
	b := &fakeSMEBackend{}

	r := chi.NewRouter()
	r.Route("/dashboard/smes", NewSMEHandler(smes, b, nil).Routes)

	var list []models.SME
	envelope(t, serve(t, r, http.MethodGet, "/dashboard/smes", nil), &list)
	assert.Empty(t, list)

	w := serve(t, r, http.MethodPost, "/dashboard/smes", map[string]any{"name": "Acme"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(t, r, http.MethodPost, "/dashboard/smes", map[string]any{
		"name": "Acme Exports", "registration_number": "U12345", "country": "India", "bank_id": 7,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, b.created)
	assert.Equal(t, "U12345", b.created.RegistrationNumber)

	selected, ok := smes.SelectedSME()
	require.True(t, ok)
	assert.Equal(t, int64(3), selected.ID)

	envelope(t, serve(t, r, http.MethodGet, "/dashboard/smes", nil), &list)
	assert.Len(t, list, 1)

	var sme models.SME
	envelope(t, serve(t, r, http.MethodGet, "/dashboard/smes/9", nil), &sme)
	assert.Equal(t, "Remote SME", sme.Name)
	_, cached := smes.GetSME(9)
	assert.True(t, cached, "fetched profile is cached")

	assert.Equal(t, http.StatusNotFound, serve(t, r, http.MethodGet, "/dashboard/smes/404", nil).Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, r, http.MethodGet, "/dashboard/smes/abc", nil).Code)
}
