package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"loanconnect/internal/backend"
	"loanconnect/internal/config"
	"loanconnect/internal/models"
	"loanconnect/internal/server"
	"loanconnect/internal/storage"
	"loanconnect/internal/store"
	"loanconnect/internal/wizard"
)

const sessionCookie = "sl_session"

// Demo entities served by the fake lending API
var (
	AcmeSMEID    = int64(1)
	ICICIBankID  = int64(7)
	HomeBankID   = int64(20)
	SMEUserToken = "sme-session"
	BankUserTok  = "bank-session"
)

// lendingAPI is an in-memory stand-in for the lending backend.
type lendingAPI struct {
	mu    sync.Mutex
	smes  map[int64]models.SME
	banks map[int64]models.Bank
	loans []models.RemoteLoan
}

func newLendingAPI() *lendingAPI {
	return &lendingAPI{
		smes: map[int64]models.SME{
			AcmeSMEID: {ID: AcmeSMEID, Name: "Acme Exports", RegistrationNumber: "U12345MH2020",
				RegisteredPhoneNumber: "+91 98765 43210", BankAccountNumber: "XX-0042", BankID: HomeBankID},
		},
		banks: map[int64]models.Bank{
			ICICIBankID: {ID: ICICIBankID, Name: "ICICI Bank", Country: "India", InterestRateMin: 8.5, InterestRateMax: 11.5},
			HomeBankID:  {ID: HomeBankID, Name: "State Bank of India", Country: "India", InterestRateMin: 7, InterestRateMax: 9},
		},
	}
}

func (api *lendingAPI) routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/auth/me", api.me)
		r.Get("/sme/{id}", api.getSME)
		r.Get("/bank/{id}", api.getBank)
		r.Get("/bank/country/{country}", api.banksByCountry)
		r.Post("/loan", api.createLoan)
		r.Get("/loan/sme/{id}", api.loansBySME)
		r.Get("/loan/bank/{id}", api.loansByBank)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func detail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func idParam(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func (api *lendingAPI) me(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		detail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	switch c.Value {
	case SMEUserToken:
		writeJSON(w, http.StatusOK, models.User{ID: 100, Name: "Priya", EntityType: models.EntityTypeSME, EntityID: &AcmeSMEID})
	case BankUserTok:
		writeJSON(w, http.StatusOK, models.User{ID: 200, Name: "Ravi", EntityType: models.EntityTypeBank, EntityID: &ICICIBankID})
	default:
		detail(w, http.StatusUnauthorized, "Invalid session")
	}
}

func (api *lendingAPI) getSME(w http.ResponseWriter, r *http.Request) {
	api.mu.Lock()
	defer api.mu.Unlock()
	sme, ok := api.smes[idParam(r)]
	if !ok {
		detail(w, http.StatusNotFound, "SME not found")
		return
	}
	writeJSON(w, http.StatusOK, sme)
}

func (api *lendingAPI) getBank(w http.ResponseWriter, r *http.Request) {
	api.mu.Lock()
	defer api.mu.Unlock()
	bank, ok := api.banks[idParam(r)]
	if !ok {
		detail(w, http.StatusNotFound, "Bank not found")
		return
	}
	writeJSON(w, http.StatusOK, bank)
}

func (api *lendingAPI) banksByCountry(w http.ResponseWriter, r *http.Request) {
	api.mu.Lock()
	defer api.mu.Unlock()
	country := chi.URLParam(r, "country")
	out := []models.Bank{}
	for _, b := range api.banks {
		if b.Country == country {
			out = append(out, b)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (api *lendingAPI) createLoan(w http.ResponseWriter, r *http.Request) {
	var p models.CreateRemoteLoanParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		detail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	loan := models.RemoteLoan{
		ID: int64(len(api.loans) + 1), Type: p.Type, Amount: p.Amount, Purpose: p.Purpose,
		InterestRateMin: p.InterestRateMin, InterestRateMax: p.InterestRateMax, Duration: p.Duration,
		Status: p.Status, ConsentStatus: p.ConsentStatus, InsightsStatus: p.InsightsStatus,
		LendingBankID: p.LendingBankID, SMEID: p.SMEID,
	}
	api.loans = append(api.loans, loan)
	writeJSON(w, http.StatusOK, loan)
}

func (api *lendingAPI) loansBySME(w http.ResponseWriter, r *http.Request) {
	api.filterLoans(w, func(l models.RemoteLoan) bool { return l.SMEID == idParam(r) })
}

func (api *lendingAPI) loansByBank(w http.ResponseWriter, r *http.Request) {
	api.filterLoans(w, func(l models.RemoteLoan) bool { return l.LendingBankID == idParam(r) })
}

func (api *lendingAPI) filterLoans(w http.ResponseWriter, keep func(models.RemoteLoan) bool) {
	api.mu.Lock()
	defer api.mu.Unlock()
	var out []models.RemoteLoan
	for _, l := range api.loans {
		if keep(l) {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		detail(w, http.StatusNotFound, "No loans found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// testContext holds test dependencies
type testContext struct {
	api     *lendingAPI
	backend *httptest.Server
	handler http.Handler
	loans   *store.LoanStore
	storage storage.Storage
	wizard  *wizard.Wizard
}

func setupTestContext(t *testing.T) *testContext {
	t.Helper()

	cfg, err := config.Load()
	require.NoError(t, err, "failed to load config")

	logger := zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
	api := newLendingAPI()
	ts := httptest.NewServer(api.routes())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Client state lives in a temp dir unless a driver is forced
	cfg.Storage.Dir = t.TempDir()
	if driver := os.Getenv("TEST_STORAGE_DRIVER"); driver != "" {
		cfg.Storage.Driver = driver
	} else {
		cfg.Storage.Driver = "file"
	}
	st, closeStorage, err := storage.Open(ctx, cfg, logger)
	require.NoError(t, err, "failed to open storage")

	loans := store.NewLoanStore(st, store.WithLogger(logger))
	smes := store.NewSMEStore(st, store.WithLogger(logger))
	require.NoError(t, loans.Hydrate(ctx))
	require.NoError(t, smes.Hydrate(ctx))

	client, err := backend.New(ts.URL, 5*time.Second)
	require.NoError(t, err)

	wiz := wizard.New(client, loans,
		wizard.WithLogger(logger),
		wizard.WithConfig(wizard.Config{
			OTPDelay:      time.Millisecond,
			UploadTick:    time.Millisecond,
			StageDuration: time.Millisecond,
		}),
	)

	srv := server.New(server.Config{
		Storage:    st,
		Loans:      loans,
		SMEs:       smes,
		Backend:    client,
		Wizard:     wiz,
		Protected:  cfg.Wizard.ProtectedRoutes,
		SignInPath: cfg.Wizard.SignInPath,
		Logger:     logger,
	})

	t.Cleanup(func() {
		wiz.Close()
		closeStorage()
		ts.Close()
	})

	return &testContext{
		api:     api,
		backend: ts,
		handler: srv.Handler(),
		loans:   loans,
		storage: st,
		wizard:  wiz,
	}
}

func (tc *testContext) do(t *testing.T, method, path, session string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: session})
	}
	w := httptest.NewRecorder()
	tc.handler.ServeHTTP(w, req)
	return w
}

func data(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	require.True(t, resp.Success, w.Body.String())
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

// TestApplicationDemo walks an SME through a loan application and checks
// what the SME and the lending bank see afterwards.
func TestApplicationDemo(t *testing.T) {
	tc := setupTestContext(t)

	t.Run("1_HealthAndReadiness", func(t *testing.T) {
		testHealthAndReadiness(t, tc)
	})

	t.Run("2_DashboardRequiresSession", func(t *testing.T) {
		testDashboardRequiresSession(t, tc)
	})

	t.Run("3_ApplyForLoan", func(t *testing.T) {
		testApplyForLoan(t, tc)
	})

	t.Run("4_SMEApplications", func(t *testing.T) {
		testSMEApplications(t, tc)
	})

	t.Run("5_BankApplications", func(t *testing.T) {
		testBankApplications(t, tc)
	})

	t.Run("6_LoanStorePersisted", func(t *testing.T) {
		testLoanStorePersisted(t, tc)
	})
}

// Test 1: health and readiness
func testHealthAndReadiness(t *testing.T, tc *testContext) {
	assert.Equal(t, http.StatusOK, tc.do(t, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, tc.do(t, http.MethodGet, "/ready", "", nil).Code)

	t.Log("✓ Server healthy and stores hydrated")
}

// Test 2: protected routes redirect without a valid session
func testDashboardRequiresSession(t *testing.T, tc *testContext) {
	for _, session := range []string{"", "expired"} {
		w := tc.do(t, http.MethodGet, "/dashboard/loans", session, nil)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/auth/sign-in", w.Header().Get("Location"))
	}

	w := tc.do(t, http.MethodGet, "/dashboard/loans", SMEUserToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	t.Log("✓ Dashboard gated on /auth/me")
}

// Test 3: full wizard run
func testApplyForLoan(t *testing.T, tc *testContext) {
	steps := []struct {
		method, path string
		body         any
	}{
		{http.MethodPost, "/dashboard/apply-loan/proceed", nil},
		{http.MethodPut, "/dashboard/apply-loan/details", map[string]any{
			"financingType": "Trade Financing", "country": "India", "bankId": ICICIBankID, "amount": "250000",
		}},
		{http.MethodPost, "/dashboard/apply-loan/continue", nil},
		{http.MethodPost, "/dashboard/apply-loan/consent/accounts", map[string]any{"id": HomeBankID}},
		{http.MethodPost, "/dashboard/apply-loan/consent/otp", map[string]any{"otp": "123456"}},
		{http.MethodPost, "/dashboard/apply-loan/uploads", map[string]any{
			"files": []map[string]any{{"name": "statements-2024.xlsx", "size": 52_000}},
		}},
	}
	for _, s := range steps {
		w := tc.do(t, s.method, s.path, SMEUserToken, s.body)
		require.Less(t, w.Code, 300, "%s %s: %s", s.method, s.path, w.Body.String())
	}

	require.Eventually(t, func() bool { return tc.wizard.State().CanProceed }, 5*time.Second, 10*time.Millisecond)

	w := tc.do(t, http.MethodPost, "/dashboard/apply-loan/submit", SMEUserToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var st wizard.State
	data(t, w, &st)
	assert.Equal(t, wizard.StepStart, st.Step)
	assert.Equal(t, "/dashboard/applications", st.Redirect)

	tc.api.mu.Lock()
	require.Len(t, tc.api.loans, 1)
	remote := tc.api.loans[0]
	tc.api.mu.Unlock()
	assert.Equal(t, 250000.0, remote.Amount)
	assert.Equal(t, AcmeSMEID, remote.SMEID)
	assert.Equal(t, ICICIBankID, remote.LendingBankID)
	assert.Equal(t, "approved", remote.ConsentStatus)

	t.Logf("✓ Loan %d submitted to %s", remote.ID, "ICICI Bank")
}

// Test 4: the SME sees its application with the lending bank's name
func testSMEApplications(t *testing.T, tc *testContext) {
	var rows []models.Application
	data(t, tc.do(t, http.MethodGet, "/dashboard/applications", SMEUserToken, nil), &rows)

	require.Len(t, rows, 1)
	assert.Equal(t, "ICICI Bank", rows[0].BankName)
	assert.Equal(t, "India", rows[0].Country)

	t.Log("✓ SME view joins the lending bank")
}

// Test 5: the bank sees the applicant and the applicant's own bank
func testBankApplications(t *testing.T, tc *testContext) {
	var rows []models.Application
	data(t, tc.do(t, http.MethodGet, "/dashboard/applications", BankUserTok, nil), &rows)

	require.Len(t, rows, 1)
	assert.Equal(t, "Acme Exports", rows[0].SMEName)
	assert.Equal(t, "+91 98765 43210", rows[0].PhoneNumber)
	assert.Equal(t, "State Bank of India", rows[0].SMEBankName)

	t.Log("✓ Bank view joins the SME and its bank")
}

// Test 6: the submitted loan survives a rehydration from storage
func testLoanStorePersisted(t *testing.T, tc *testContext) {
	reloaded := store.NewLoanStore(tc.storage)
	require.NoError(t, reloaded.Hydrate(context.Background()))

	loans := reloaded.GetLoans()
	require.Len(t, loans, 1)
	assert.Equal(t, models.LoanStatusUnderReview, loans[0].Status)
	assert.True(t, loans[0].IsSubmitted())
	_, open := reloaded.Draft()
	assert.False(t, open)

	t.Log("✓ Loan store snapshot persisted")
}
