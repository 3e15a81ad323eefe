// Package wizard drives the loan application flow:
// start → loanDetails → consent → uploadDocuments → submission.
//
// The wizard reads and writes the draft loan through the loan store and talks
// to the backend for bank lists, linked accounts and the final submission.
// Every operation checks the current step; calling one in the wrong step
// returns ErrInvalidTransition and changes nothing.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"loanconnect/internal/consent"
	"loanconnect/internal/models"
	"loanconnect/internal/store"
	"loanconnect/internal/submission"
	"loanconnect/internal/upload"
)

// ApplicationsPath is where the applicant lands after a successful submission.
const ApplicationsPath = "/dashboard/applications"

// Step identifies the screen the wizard is on.
type Step string

const (
	StepStart           Step = "start"
	StepLoanDetails     Step = "loanDetails"
	StepConsent         Step = "consent"
	StepUploadDocuments Step = "uploadDocuments"
)

var (
	ErrInvalidTransition    = errors.New("operation not allowed in the current step")
	ErrIncomplete           = errors.New("financing type, country, bank and amount are required")
	ErrUploadsPending       = errors.New("all files must finish uploading before submitting")
	ErrSubmitting           = errors.New("application is already being submitted")
	ErrNoDraft              = errors.New("no loan draft in progress")
	ErrUnknownFinancingType = errors.New("unknown financing type")
	ErrUnknownCountry       = errors.New("no banks are onboarded in this country")
	ErrUnknownBank          = errors.New("bank is not offered in the selected country")
	ErrSubmitFailed         = errors.New("lending backend did not accept the loan")
)

// Backend is the part of the lending API the wizard calls.
type Backend interface {
	consent.Directory
	BanksByCountry(ctx context.Context, country string) ([]models.Bank, error)
	CreateLoan(ctx context.Context, params models.CreateRemoteLoanParams) (*models.RemoteLoan, error)
}

// Drafts is the part of the loan store the wizard uses.
type Drafts interface {
	consent.StatusUpdater
	SaveDraft(data models.ApplicationData) (models.Loan, bool)
	Draft() (models.Loan, bool)
	MarkSubmitted(id string, serverID int64) (models.Loan, bool)
}

// Navigator is told where to send the user once the wizard is finished.
type Navigator func(path string)

// Config holds the simulated delays.
type Config struct {
	OTPDelay      time.Duration
	UploadTick    time.Duration
	StageDuration time.Duration
}

// DefaultConfig returns the delays of the original flow.
func DefaultConfig() Config {
	return Config{
		OTPDelay:      2 * time.Second,
		UploadTick:    200 * time.Millisecond,
		StageDuration: 2 * time.Second,
	}
}

// Selection is the loan details form.
type Selection struct {
	FinancingType string       `json:"financingType"`
	Country       string       `json:"country"`
	Bank          *models.Bank `json:"bank,omitempty"`
	Amount        string       `json:"amount"`
}

// Valid reports whether every required field is set.
func (s Selection) Valid() bool {
	return s.FinancingType != "" && s.Country != "" && s.Bank != nil && s.Amount != ""
}

// Wizard is the application flow of one applicant. It holds a single
// browser session's progress; do not share one Wizard between users.
type Wizard struct {
	mu       sync.Mutex
	backend  Backend
	drafts   Drafts
	cfg      Config
	logger   *zap.Logger
	navigate Navigator

	step       Step
	sel        Selection
	banks      []models.Bank
	generation uint64
	smeID      int64

	dialog     *consent.Dialog
	stager     *upload.Stager
	sequence   *submission.Sequence
	submitting bool
	redirect   string
}

// Option configures a Wizard.
type Option func(*Wizard)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Wizard) { w.logger = logger }
}

// WithNavigator sets the callback run after a successful submission.
func WithNavigator(nav Navigator) Option {
	return func(w *Wizard) { w.navigate = nav }
}

// WithConfig overrides the simulated delays.
func WithConfig(cfg Config) Option {
	return func(w *Wizard) { w.cfg = cfg }
}

// New creates a wizard in the start step.
func New(backend Backend, drafts Drafts, opts ...Option) *Wizard {
	w := &Wizard{
		backend:  backend,
		drafts:   drafts,
		cfg:      DefaultConfig(),
		logger:   zap.NewNop(),
		navigate: func(string) {},
		step:     StepStart,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SetApplicant records the SME the application is made for.
func (w *Wizard) SetApplicant(smeID int64) {
	w.mu.Lock()
	w.smeID = smeID
	w.mu.Unlock()
}

// Step returns the current step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

func (w *Wizard) expect(step Step) error {
	if w.step != step {
		return fmt.Errorf("%w: in %s, need %s", ErrInvalidTransition, w.step, step)
	}
	return nil
}

// --- start ---

// Proceed moves from start to loanDetails. An open draft pre-fills the form.
func (w *Wizard) Proceed(ctx context.Context) error {
	w.mu.Lock()
	if err := w.expect(StepStart); err != nil {
		w.mu.Unlock()
		return err
	}
	w.step = StepLoanDetails
	country := w.restoreLocked()
	w.generation++
	gen := w.generation
	w.mu.Unlock()

	if country != "" {
		w.loadBanks(ctx, gen, country)
	}
	return nil
}

// restoreLocked copies the open draft into the form and returns its country.
func (w *Wizard) restoreLocked() string {
	draft, ok := w.drafts.Draft()
	if !ok {
		return ""
	}

	w.sel = Selection{
		FinancingType: draft.Type,
		Country:       draft.Country,
		Amount:        draft.Amount,
	}
	if draft.LendingBankID != nil {
		bank := &models.Bank{
			ID:      *draft.LendingBankID,
			Name:    draft.BankName,
			Country: draft.Country,
		}
		if draft.InterestRateMin != nil {
			bank.InterestRateMin = *draft.InterestRateMin
		}
		if draft.InterestRateMax != nil {
			bank.InterestRateMax = *draft.InterestRateMax
		}
		w.sel.Bank = bank
	}
	w.banks = nil
	return draft.Country
}

// --- loanDetails ---

// SelectFinancingType sets the loan category.
func (w *Wizard) SelectFinancingType(title string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.expect(StepLoanDetails); err != nil {
		return err
	}
	if !models.IsFinancingType(title) {
		return fmt.Errorf("%w: %q", ErrUnknownFinancingType, title)
	}
	w.sel.FinancingType = title
	return nil
}

// SelectCountry sets the country, clears the bank and fetches the country's
// banks. A bank list that arrives after a newer SelectCountry is dropped.
func (w *Wizard) SelectCountry(ctx context.Context, country string) error {
	w.mu.Lock()
	if err := w.expect(StepLoanDetails); err != nil {
		w.mu.Unlock()
		return err
	}
	if !slices.Contains(models.Countries, country) {
		w.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownCountry, country)
	}
	w.sel.Country = country
	w.sel.Bank = nil
	w.banks = nil
	w.generation++
	gen := w.generation
	w.mu.Unlock()

	w.loadBanks(ctx, gen, country)
	return nil
}

// loadBanks fetches banks without holding the lock and keeps them only if
// no newer selection happened meanwhile. Failures leave the list empty.
func (w *Wizard) loadBanks(ctx context.Context, gen uint64, country string) {
	banks, err := w.backend.BanksByCountry(ctx, country)
	if err != nil {
		w.logger.Warn("fetch banks failed", zap.String("country", country), zap.Error(err))
		banks = nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if gen != w.generation || w.step != StepLoanDetails {
		w.logger.Debug("dropping stale bank list", zap.String("country", country))
		return
	}
	w.banks = banks
}

// SelectBank picks one of the banks listed for the selected country.
// Its interest rates are copied into the form.
func (w *Wizard) SelectBank(id int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.expect(StepLoanDetails); err != nil {
		return err
	}
	i := slices.IndexFunc(w.banks, func(b models.Bank) bool { return b.ID == id })
	if i < 0 {
		return fmt.Errorf("%w: %d", ErrUnknownBank, id)
	}
	bank := w.banks[i]
	w.sel.Bank = &bank
	return nil
}

// SetAmount sets the requested amount. Only emptiness is checked here.
func (w *Wizard) SetAmount(amount string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.expect(StepLoanDetails); err != nil {
		return err
	}
	w.sel.Amount = strings.TrimSpace(amount)
	return nil
}

// Valid reports whether Continue would accept the form.
func (w *Wizard) Valid() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sel.Valid()
}

// Continue saves the form into the draft and moves to consent. Linked bank
// accounts for the consent step are fetched here; a failed fetch leaves none.
func (w *Wizard) Continue(ctx context.Context) error {
	w.mu.Lock()
	if err := w.expect(StepLoanDetails); err != nil {
		w.mu.Unlock()
		return err
	}
	if !w.sel.Valid() {
		w.mu.Unlock()
		return ErrIncomplete
	}

	draft, created := w.drafts.SaveDraft(w.applicationLocked())
	if draft.ConsentStatus == models.ConsentStatusRejected {
		draft, _ = w.drafts.UpdateConsentStatus(draft.ID, models.ConsentStatusPending, "")
	}
	dialog := consent.NewDialog(w.drafts, draft.ID, w.cfg.OTPDelay)
	w.dialog = dialog
	w.step = StepConsent
	smeID := w.smeID
	w.mu.Unlock()

	w.logger.Info("loan draft saved",
		zap.String("loan_id", draft.ID),
		zap.Bool("created", created),
	)

	if smeID != 0 {
		accounts, err := consent.LinkedAccounts(ctx, w.backend, smeID)
		if err != nil {
			w.logger.Warn("fetch linked accounts failed", zap.Int64("sme_id", smeID), zap.Error(err))
		}
		dialog.SetAccounts(accounts)
	}
	return nil
}

func (w *Wizard) applicationLocked() models.ApplicationData {
	return models.ApplicationData{
		Type:            w.sel.FinancingType,
		Amount:          w.sel.Amount,
		Country:         w.sel.Country,
		BankName:        w.sel.Bank.Name,
		SMEID:           w.smeID,
		BankID:          w.sel.Bank.ID,
		InterestRateMin: w.sel.Bank.InterestRateMin,
		InterestRateMax: w.sel.Bank.InterestRateMax,
		Duration:        store.DefaultDuration,
	}
}

// --- consent ---

// Consent returns the consent dialog of the current draft.
func (w *Wizard) Consent() (*consent.Dialog, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.expect(StepConsent); err != nil {
		return nil, err
	}
	return w.dialog, nil
}

// ApproveConsent confirms the OTP and moves to uploadDocuments once the
// simulated delay has passed. A draft whose consent is already approved
// moves on without a code.
func (w *Wizard) ApproveConsent(ctx context.Context, otp string) error {
	w.mu.Lock()
	if err := w.expect(StepConsent); err != nil {
		w.mu.Unlock()
		return err
	}
	dialog := w.dialog
	draft, ok := w.drafts.Draft()
	w.mu.Unlock()

	if !ok || draft.ConsentStatus != models.ConsentStatusApproved {
		dialog.SetCode(otp)
		if err := dialog.Submit(ctx); err != nil {
			return err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.step != StepConsent || w.dialog != dialog {
		return fmt.Errorf("%w: step changed during consent", ErrInvalidTransition)
	}
	w.step = StepUploadDocuments
	w.stager = upload.NewStager(context.Background(), w.cfg.UploadTick, w.logger.Named("upload"))
	return nil
}

// RejectConsent records the rejection and returns to loanDetails.
func (w *Wizard) RejectConsent(notes string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.expect(StepConsent); err != nil {
		return err
	}
	if err := w.dialog.Reject(notes); err != nil {
		return err
	}
	w.dialog = nil
	w.step = StepLoanDetails
	return nil
}

// --- uploadDocuments ---

// Uploads returns the file stager of the current application.
func (w *Wizard) Uploads() (*upload.Stager, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.expect(StepUploadDocuments); err != nil {
		return nil, err
	}
	return w.stager, nil
}

// Back moves one step backwards without touching the draft:
// loanDetails → start, consent → loanDetails, uploadDocuments → consent.
// Staged files are discarded when leaving uploadDocuments.
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.submitting {
		return ErrSubmitting
	}

	switch w.step {
	case StepLoanDetails:
		w.step = StepStart
		w.generation++
	case StepConsent:
		w.dialog = nil
		w.step = StepLoanDetails
	case StepUploadDocuments:
		w.closeStagerLocked()
		w.step = StepConsent
	default:
		return fmt.Errorf("%w: cannot go back from %s", ErrInvalidTransition, w.step)
	}
	return nil
}

func (w *Wizard) closeStagerLocked() {
	if w.stager == nil {
		return
	}
	if err := w.stager.Close(); err != nil {
		w.logger.Warn("close upload stager", zap.Error(err))
	}
	w.stager = nil
}

// Submit sends the draft to the backend, runs the submission sequence and
// navigates to the applications page. The wizard is reset to start once the
// backend has accepted the loan.
func (w *Wizard) Submit(ctx context.Context) error {
	w.mu.Lock()
	if err := w.expect(StepUploadDocuments); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.submitting {
		w.mu.Unlock()
		return ErrSubmitting
	}
	if w.stager == nil || !w.stager.CanProceed() {
		w.mu.Unlock()
		return ErrUploadsPending
	}
	draft, ok := w.drafts.Draft()
	if !ok {
		w.mu.Unlock()
		return ErrNoDraft
	}
	w.submitting = true
	seq := submission.NewSequence(submission.DefaultStages(w.cfg.StageDuration))
	w.sequence = seq
	w.mu.Unlock()

	err := w.submit(ctx, draft, seq)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false
	return err
}

func (w *Wizard) submit(ctx context.Context, draft models.Loan, seq *submission.Sequence) error {
	params, err := draft.RemoteParams()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIncomplete, err)
	}
	params.Status = string(models.LoanStatusPending)

	remote, err := w.backend.CreateLoan(ctx, params)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}
	w.drafts.MarkSubmitted(draft.ID, remote.ID)
	w.logger.Info("loan submitted",
		zap.String("loan_id", draft.ID),
		zap.Int64("server_id", remote.ID),
	)

	w.mu.Lock()
	w.resetLocked()
	w.mu.Unlock()

	err = seq.Run(ctx, func(s submission.Stage) {
		w.logger.Debug("submission stage", zap.Int("stage", s.ID), zap.String("title", s.Title))
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.redirect = ApplicationsPath
	w.mu.Unlock()
	w.navigate(ApplicationsPath)
	return nil
}

// resetLocked returns the wizard to start with an empty form.
func (w *Wizard) resetLocked() {
	w.closeStagerLocked()
	w.dialog = nil
	w.sel = Selection{}
	w.banks = nil
	w.generation++
	w.step = StepStart
}

// Close stops background work.
func (w *Wizard) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeStagerLocked()
}
