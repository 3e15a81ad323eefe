// Package consent implements the data-sharing consent step: linked bank
// account selection, the simulated OTP confirmation and the reject dialog.
package consent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"loanconnect/internal/models"
)

// CodeLength is the number of characters an OTP must have. The code itself is
// never verified.
const CodeLength = 6

var (
	ErrNoAccount   = errors.New("select at least one bank account")
	ErrCodeInvalid = fmt.Errorf("otp must be %d characters", CodeLength)
	ErrSubmitting  = errors.New("consent approval already in progress")
)

// StatusUpdater records consent decisions on a loan.
type StatusUpdater interface {
	UpdateConsentStatus(id string, status models.ConsentStatus, notes string) (models.Loan, bool)
}

// Account is a bank account the SME can share data from.
type Account struct {
	ID            int64  `json:"id"`
	BankName      string `json:"bankName"`
	AccountNumber string `json:"accountNumber"`
}

// View is a snapshot of the dialog for rendering. The code is not echoed.
type View struct {
	LoanID     string    `json:"loanId"`
	Accounts   []Account `json:"accounts"`
	Selected   []int64   `json:"selected"`
	CodeLength int       `json:"codeLength"`
	CanOpen    bool      `json:"canOpen"`
	CanSubmit  bool      `json:"canSubmit"`
	Submitting bool      `json:"submitting"`
}

// Dialog holds the consent state of one draft loan.
type Dialog struct {
	mu         sync.Mutex
	loans      StatusUpdater
	loanID     string
	delay      time.Duration
	accounts   []Account
	selected   []int64
	code       string
	submitting bool
}

// NewDialog creates the consent dialog for loanID. delay is the simulated
// confirmation time between approval and success.
func NewDialog(loans StatusUpdater, loanID string, delay time.Duration) *Dialog {
	return &Dialog{
		loans:  loans,
		loanID: loanID,
		delay:  delay,
	}
}

// SetAccounts replaces the linked accounts and drops selections that no longer exist.
func (d *Dialog) SetAccounts(accounts []Account) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.accounts = slices.Clone(accounts)
	d.selected = slices.DeleteFunc(d.selected, func(id int64) bool {
		return !slices.ContainsFunc(d.accounts, func(a Account) bool { return a.ID == id })
	})
}

// ToggleAccount flips the selection of an account and reports whether it is now selected.
// Unknown ids are ignored.
func (d *Dialog) ToggleAccount(id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !slices.ContainsFunc(d.accounts, func(a Account) bool { return a.ID == id }) {
		return false
	}
	if i := slices.Index(d.selected, id); i >= 0 {
		d.selected = slices.Delete(d.selected, i, i+1)
		return false
	}
	d.selected = append(d.selected, id)
	return true
}

// CanOpen reports whether the OTP dialog may be opened.
func (d *Dialog) CanOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.canOpenLocked()
}

func (d *Dialog) canOpenLocked() bool {
	return len(d.selected) > 0
}

// SetCode records the entered OTP.
func (d *Dialog) SetCode(code string) {
	d.mu.Lock()
	d.code = code
	d.mu.Unlock()
}

// CanSubmit reports whether the submit action is enabled.
func (d *Dialog) CanSubmit() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.checkLocked() == nil
}

func (d *Dialog) checkLocked() error {
	switch {
	case d.submitting:
		return ErrSubmitting
	case !d.canOpenLocked():
		return ErrNoAccount
	case utf8.RuneCountInString(d.code) != CodeLength:
		return ErrCodeInvalid
	}
	return nil
}

// Submit approves consent immediately, then waits the simulated delay before
// returning. Cancelling ctx ends the wait early; the approval is kept.
func (d *Dialog) Submit(ctx context.Context) error {
	d.mu.Lock()
	if err := d.checkLocked(); err != nil {
		d.mu.Unlock()
		return err
	}
	d.submitting = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.submitting = false
		d.code = ""
		d.mu.Unlock()
	}()

	if d.loanID != "" {
		d.loans.UpdateConsentStatus(d.loanID, models.ConsentStatusApproved, "")
	}

	if d.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(d.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reject records a rejection. No code is required.
func (d *Dialog) Reject(notes string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.submitting {
		return ErrSubmitting
	}
	if d.loanID != "" {
		d.loans.UpdateConsentStatus(d.loanID, models.ConsentStatusRejected, notes)
	}
	d.code = ""
	return nil
}

// View returns a snapshot of the dialog.
func (d *Dialog) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()

	return View{
		LoanID:     d.loanID,
		Accounts:   slices.Clone(d.accounts),
		Selected:   slices.Clone(d.selected),
		CodeLength: utf8.RuneCountInString(d.code),
		CanOpen:    d.canOpenLocked(),
		CanSubmit:  d.checkLocked() == nil,
		Submitting: d.submitting,
	}
}
