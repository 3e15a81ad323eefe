package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"loanconnect/internal/models"
	"loanconnect/internal/storage"
)

// LoanStoreKey is the storage namespace of the loan store.
const LoanStoreKey = "loan-store"

// DefaultDuration is the loan duration in months used by the wizard.
const DefaultDuration = 24

// ErrDraftExists is returned when a new draft is requested while one is open.
var ErrDraftExists = errors.New("a loan draft is already in progress")

// loanState is the persisted part of the loan store.
type loanState struct {
	Loans       []models.Loan      `json:"loans"`
	LoanFilters models.LoanFilters `json:"loanFilters"`
	DraftID     string             `json:"draftId,omitempty"`
}

// LoanStore is the in-memory, persisted collection of loan records.
// It is safe for concurrent use; every mutation is applied and persisted under one lock.
type LoanStore struct {
	mu      sync.RWMutex
	storage storage.Storage
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string

	loans      []models.Loan
	filters    models.LoanFilters
	draftID    string
	selectedID string
	loading    bool
	lastError  string

	hydrated  bool
	ready     chan struct{}
	readyOnce sync.Once
}

// Option configures a store.
type Option func(*options)

type options struct {
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// WithLogger sets the logger used for persistence failures.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides loan id generation.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

func buildOptions(opts []Option) options {
	o := options{
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewLoanStore creates an empty, unhydrated loan store backed by s.
func NewLoanStore(s storage.Storage, opts ...Option) *LoanStore {
	o := buildOptions(opts)
	return &LoanStore{
		storage: s,
		logger:  o.logger.Named("loan-store"),
		now:     o.now,
		newID:   o.newID,
		ready:   make(chan struct{}),
	}
}

// --- Lifecycle ---

// Hydrate replaces the in-memory state with the persisted snapshot, if any.
// The store is marked hydrated even when reading fails, so callers proceed with defaults.
func (s *LoanStore) Hydrate(ctx context.Context) error {
	state, ok, err := load[loanState](ctx, s.storage, LoanStoreKey)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.markReady()

	if err != nil {
		s.lastError = err.Error()
		s.logger.Warn("hydrate failed", zap.Error(err))
		return err
	}
	if ok {
		s.loans = state.Loans
		s.filters = state.LoanFilters
		s.draftID = state.DraftID
		if s.draftID != "" && s.indexOf(s.draftID) < 0 {
			s.draftID = ""
		}
	}
	s.logger.Debug("hydrated", zap.Int("loans", len(s.loans)), zap.Bool("snapshot", ok))
	return nil
}

func (s *LoanStore) markReady() {
	s.hydrated = true
	s.readyOnce.Do(func() { close(s.ready) })
}

// Hydrated reports whether Hydrate has run.
func (s *LoanStore) Hydrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrated
}

// Ready is closed once the store has been hydrated.
func (s *LoanStore) Ready() <-chan struct{} {
	return s.ready
}

// mutate applies fn under the write lock and persists the result.
func (s *LoanStore) mutate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn()
	s.persistLocked()
}

func (s *LoanStore) persistLocked() {
	state := loanState{
		Loans:       s.loans,
		LoanFilters: s.filters,
		DraftID:     s.draftID,
	}
	if state.Loans == nil {
		state.Loans = []models.Loan{}
	}
	if err := save(s.storage, LoanStoreKey, state); err != nil {
		s.lastError = err.Error()
		s.logger.Warn("persist failed", zap.Error(err))
	}
}

func (s *LoanStore) timestamp() time.Time {
	return s.now().UTC()
}

func (s *LoanStore) indexOf(id string) int {
	for i := range s.loans {
		if s.loans[i].ID == id {
			return i
		}
	}
	return -1
}

// updateLocked merges p into the loan with the given id and restamps updated_at.
func (s *LoanStore) updateLocked(id string, p models.UpdateLoanParams) (models.Loan, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return models.Loan{}, false
	}
	p.Apply(&s.loans[i])
	s.loans[i].UpdatedAt = s.timestamp()
	return s.loans[i].Clone(), true
}

// update is the shared merge-and-restamp path. Unknown ids are a silent no-op.
func (s *LoanStore) update(id string, p models.UpdateLoanParams) (models.Loan, bool) {
	var (
		loan  models.Loan
		found bool
	)
	s.mutate(func() {
		loan, found = s.updateLocked(id, p)
	})
	return loan, found
}

// --- CRUD ---

// AddLoan appends a new loan with generated id and timestamps.
// No uniqueness check is made against existing loans.
func (s *LoanStore) AddLoan(p models.NewLoanParams) models.Loan {
	var loan models.Loan
	s.mutate(func() {
		loan = s.addLocked(p)
	})
	return loan
}

func (s *LoanStore) addLocked(p models.NewLoanParams) models.Loan {
	now := s.timestamp()
	loan := models.Loan{
		ID:              s.newID(),
		Type:            p.Type,
		Amount:          p.Amount,
		Purpose:         p.Purpose,
		Status:          p.Status,
		ConsentStatus:   p.ConsentStatus,
		InsightsStatus:  p.InsightsStatus,
		InterestRateMin: p.InterestRateMin,
		InterestRateMax: p.InterestRateMax,
		Duration:        p.Duration,
		LendingBankID:   p.LendingBankID,
		SMEID:           p.SMEID,
		Country:         p.Country,
		BankName:        p.BankName,
		ApplicationDate: p.ApplicationDate,
		Notes:           p.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	loan = loan.Clone()
	s.loans = append(s.loans, loan)
	return loan.Clone()
}

// UpdateLoan merges p into the loan with the given id.
// It returns false, changing nothing, when the id is unknown.
func (s *LoanStore) UpdateLoan(id string, p models.UpdateLoanParams) (models.Loan, bool) {
	return s.update(id, p)
}

// DeleteLoan removes the loan with the given id.
func (s *LoanStore) DeleteLoan(id string) {
	s.DeleteMultipleLoans([]string{id})
}

// DeleteMultipleLoans removes every loan whose id is listed.
// The selection and the open draft are cleared when they were removed.
func (s *LoanStore) DeleteMultipleLoans(ids []string) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.mutate(func() {
		kept := s.loans[:0]
		for _, l := range s.loans {
			if _, ok := drop[l.ID]; !ok {
				kept = append(kept, l)
			}
		}
		s.loans = kept

		if _, ok := drop[s.selectedID]; ok {
			s.selectedID = ""
		}
		if _, ok := drop[s.draftID]; ok {
			s.draftID = ""
		}
	})
}

// GetLoans returns a copy of all loans in insertion order.
func (s *LoanStore) GetLoans() []models.Loan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneLoans(s.loans)
}

// GetLoan returns the loan with the given id.
func (s *LoanStore) GetLoan(id string) (models.Loan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.Loan{}, false
	}
	return s.loans[i].Clone(), true
}

// SetLoans replaces the whole collection.
func (s *LoanStore) SetLoans(loans []models.Loan) {
	s.mutate(func() {
		s.loans = cloneLoans(loans)
		if s.draftID != "" && s.indexOf(s.draftID) < 0 {
			s.draftID = ""
		}
		if s.selectedID != "" && s.indexOf(s.selectedID) < 0 {
			s.selectedID = ""
		}
	})
}

// ClearLoans empties the collection, the selection and the draft.
func (s *LoanStore) ClearLoans() {
	s.mutate(func() {
		s.loans = nil
		s.selectedID = ""
		s.draftID = ""
	})
}

// SetSelectedLoan selects a loan by id; an empty id clears the selection.
func (s *LoanStore) SetSelectedLoan(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" && s.indexOf(id) < 0 {
		return
	}
	s.selectedID = id
}

// SelectedLoan returns the selected loan, if any.
func (s *LoanStore) SelectedLoan() (models.Loan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selectedID == "" {
		return models.Loan{}, false
	}
	i := s.indexOf(s.selectedID)
	if i < 0 {
		return models.Loan{}, false
	}
	return s.loans[i].Clone(), true
}

// --- Status helpers ---

// UpdateLoanStatus sets status, and notes when non-empty.
func (s *LoanStore) UpdateLoanStatus(id string, status models.LoanStatus, notes string) (models.Loan, bool) {
	p := models.UpdateLoanParams{Status: &status}
	if notes != "" {
		p.Notes = &notes
	}
	return s.update(id, p)
}

// UpdateConsentStatus sets consent_status, and notes when non-empty.
func (s *LoanStore) UpdateConsentStatus(id string, status models.ConsentStatus, notes string) (models.Loan, bool) {
	p := models.UpdateLoanParams{ConsentStatus: &status}
	if notes != "" {
		p.Notes = &notes
	}
	return s.update(id, p)
}

// UpdateInsightsStatus sets insights_status.
func (s *LoanStore) UpdateInsightsStatus(id string, status models.InsightsStatus) (models.Loan, bool) {
	return s.update(id, models.UpdateLoanParams{InsightsStatus: &status})
}

// ApproveLoan marks a loan approved. A nil date stamps the current time.
func (s *LoanStore) ApproveLoan(id string, approvalDate *time.Time) (models.Loan, bool) {
	date := s.timestamp()
	if approvalDate != nil {
		date = approvalDate.UTC()
	}
	status := models.LoanStatusApproved
	return s.update(id, models.UpdateLoanParams{Status: &status, ApprovalDate: &date})
}

// RejectLoan marks a loan rejected with a reason.
func (s *LoanStore) RejectLoan(id, reason string) (models.Loan, bool) {
	status := models.LoanStatusRejected
	return s.update(id, models.UpdateLoanParams{Status: &status, RejectionReason: &reason})
}

// UpdateMultipleLoanStatus sets status on every listed loan.
func (s *LoanStore) UpdateMultipleLoanStatus(ids []string, status models.LoanStatus) {
	s.mutate(func() {
		for _, id := range ids {
			s.updateLocked(id, models.UpdateLoanParams{Status: &status})
		}
	})
}

// --- Loading and error state (not persisted) ---

// SetLoading records whether a fetch is in flight.
func (s *LoanStore) SetLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
}

// IsLoading reports the loading flag.
func (s *LoanStore) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// SetError records a user-facing error message.
func (s *LoanStore) SetError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
}

// ClearError resets the error message.
func (s *LoanStore) ClearError() {
	s.SetError("")
}

// Error returns the last recorded error message.
func (s *LoanStore) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// --- Drafts ---

// CreateLoanFromApplication maps wizard input to a pending loan and opens it as the draft.
// It returns ErrDraftExists while another draft is open.
func (s *LoanStore) CreateLoanFromApplication(data models.ApplicationData) (models.Loan, error) {
	var (
		loan models.Loan
		err  error
	)
	s.mutate(func() {
		if s.draftID != "" {
			err = ErrDraftExists
			return
		}
		loan = s.addLocked(s.newLoanFromApplication(data))
		s.draftID = loan.ID
	})
	return loan, err
}

// SaveDraft creates the draft from data, or updates the open draft in place.
// created reports which of the two happened.
func (s *LoanStore) SaveDraft(data models.ApplicationData) (loan models.Loan, created bool) {
	s.mutate(func() {
		if s.draftID != "" {
			if l, ok := s.updateLocked(s.draftID, draftUpdate(data)); ok {
				loan = l
				return
			}
		}
		loan = s.addLocked(s.newLoanFromApplication(data))
		s.draftID = loan.ID
		created = true
	})
	return loan, created
}

// Draft returns the loan currently being filled in by the wizard.
func (s *LoanStore) Draft() (models.Loan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.draftID == "" {
		return models.Loan{}, false
	}
	i := s.indexOf(s.draftID)
	if i < 0 {
		return models.Loan{}, false
	}
	return s.loans[i].Clone(), true
}

// MarkSubmitted records the backend id of the draft, moves it under review and closes the draft.
func (s *LoanStore) MarkSubmitted(id string, serverID int64) (models.Loan, bool) {
	var (
		loan  models.Loan
		found bool
	)
	s.mutate(func() {
		status := models.LoanStatusUnderReview
		loan, found = s.updateLocked(id, models.UpdateLoanParams{Status: &status, ServerID: &serverID})
		if found && s.draftID == id {
			s.draftID = ""
		}
	})
	return loan, found
}

func (s *LoanStore) newLoanFromApplication(data models.ApplicationData) models.NewLoanParams {
	appliedAt := s.timestamp()
	duration := data.Duration
	if duration <= 0 {
		duration = DefaultDuration
	}
	return models.NewLoanParams{
		Type:            data.Type,
		Amount:          data.Amount,
		Purpose:         data.Type,
		Status:          models.LoanStatusPending,
		ConsentStatus:   models.ConsentStatusPending,
		InsightsStatus:  models.InsightsStatusPending,
		InterestRateMin: models.Ptr(data.InterestRateMin),
		InterestRateMax: models.Ptr(data.InterestRateMax),
		Duration:        duration,
		LendingBankID:   models.Ptr(data.BankID),
		SMEID:           models.Ptr(data.SMEID),
		Country:         data.Country,
		BankName:        data.BankName,
		ApplicationDate: &appliedAt,
	}
}

func draftUpdate(data models.ApplicationData) models.UpdateLoanParams {
	p := models.UpdateLoanParams{
		Type:            models.Ptr(data.Type),
		Amount:          models.Ptr(data.Amount),
		Purpose:         models.Ptr(data.Type),
		InterestRateMin: models.Ptr(data.InterestRateMin),
		InterestRateMax: models.Ptr(data.InterestRateMax),
		LendingBankID:   models.Ptr(data.BankID),
		SMEID:           models.Ptr(data.SMEID),
		Country:         models.Ptr(data.Country),
		BankName:        models.Ptr(data.BankName),
	}
	if data.Duration > 0 {
		p.Duration = models.Ptr(data.Duration)
	}
	return p
}

func cloneLoans(loans []models.Loan) []models.Loan {
	out := make([]models.Loan, len(loans))
	for i, l := range loans {
		out[i] = l.Clone()
	}
	return out
}
