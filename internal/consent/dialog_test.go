package consent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanconnect/internal/models"
	"loanconnect/internal/storage"
	"loanconnect/internal/store"
)

func newDraft(t *testing.T) (*store.LoanStore, models.Loan) {
	t.Helper()
	ls := store.NewLoanStore(storage.NewMemory())
	require.NoError(t, ls.Hydrate(context.Background()))
	loan, err := ls.CreateLoanFromApplication(models.ApplicationData{
		Type: "Trade Financing", Amount: "50000", Country: "India", BankName: "ICICI Bank", SMEID: 1, BankID: 7,
	})
	require.NoError(t, err)
	return ls, loan
}

func consentOf(t *testing.T, ls *store.LoanStore, id string) models.ConsentStatus {
	t.Helper()
	loan, ok := ls.GetLoan(id)
	require.True(t, ok)
	return loan.ConsentStatus
}

func TestSubmitGates(t *testing.T) {
	ls, loan := newDraft(t)
	d := NewDialog(ls, loan.ID, 0)
	d.SetAccounts([]Account{{ID: 7, BankName: "ICICI Bank", AccountNumber: "0042"}})

	assert.False(t, d.CanOpen(), "no account selected")
	assert.ErrorIs(t, d.Submit(context.Background()), ErrNoAccount)

	assert.True(t, d.ToggleAccount(7))
	assert.True(t, d.CanOpen())

	for _, code := range []string{"", "1", "12345", "1234567"} {
		d.SetCode(code)
		assert.False(t, d.CanSubmit(), code)
		assert.ErrorIs(t, d.Submit(context.Background()), ErrCodeInvalid, code)
	}
	assert.Equal(t, models.ConsentStatusPending, consentOf(t, ls, loan.ID), "short codes change nothing")

	d.SetCode("123456")
	assert.True(t, d.CanSubmit())
}

func TestSubmitApprovesAfterDelay(t *testing.T) {
	ls, loan := newDraft(t)
	d := NewDialog(ls, loan.ID, 50*time.Millisecond)
	d.SetAccounts([]Account{{ID: 7}})
	d.ToggleAccount(7)
	d.SetCode("000000")

	done := make(chan error, 1)
	go func() { done <- d.Submit(context.Background()) }()

	require.Eventually(t, func() bool {
		got, _ := ls.GetLoan(loan.ID)
		return got.ConsentStatus == models.ConsentStatusApproved
	}, time.Second, 5*time.Millisecond, "approval is recorded before the delay ends")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("submit did not return")
	}

	assert.Equal(t, models.ConsentStatusApproved, consentOf(t, ls, loan.ID))
	assert.False(t, d.View().Submitting)
	assert.Zero(t, d.View().CodeLength, "code is cleared after submit")
}

func TestSubmitWhileSubmitting(t *testing.T) {
	ls, loan := newDraft(t)
	d := NewDialog(ls, loan.ID, time.Hour)
	d.SetAccounts([]Account{{ID: 7}})
	d.ToggleAccount(7)
	d.SetCode("123456")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Submit(ctx) }()

	require.Eventually(t, func() bool { return d.View().Submitting }, time.Second, 5*time.Millisecond)
	d.SetCode("654321")
	assert.ErrorIs(t, d.Submit(context.Background()), ErrSubmitting)
	assert.ErrorIs(t, d.Reject("changed my mind"), ErrSubmitting)

	cancel()
	err := <-done
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, models.ConsentStatusApproved, consentOf(t, ls, loan.ID), "cancelling the wait keeps the approval")
}

func TestReject(t *testing.T) {
	ls, loan := newDraft(t)
	d := NewDialog(ls, loan.ID, 0)

	require.NoError(t, d.Reject("wrong bank"))
	got, _ := ls.GetLoan(loan.ID)
	assert.Equal(t, models.ConsentStatusRejected, got.ConsentStatus)
	assert.Equal(t, "wrong bank", got.Notes)
}

func TestToggleAndSetAccounts(t *testing.T) {
	ls, loan := newDraft(t)
	d := NewDialog(ls, loan.ID, 0)
	d.SetAccounts([]Account{{ID: 1}, {ID: 2}})

	assert.False(t, d.ToggleAccount(99), "unknown account")
	assert.True(t, d.ToggleAccount(1))
	assert.True(t, d.ToggleAccount(2))
	assert.False(t, d.ToggleAccount(1))
	assert.Equal(t, []int64{2}, d.View().Selected)

	d.SetAccounts([]Account{{ID: 1}})
	assert.Empty(t, d.View().Selected, "selection of a vanished account is dropped")
}

type fakeDirectory struct {
	sme  *models.SME
	bank *models.Bank
	err  error
}

func (f fakeDirectory) GetSME(context.Context, int64) (*models.SME, error) { return f.sme, f.err }
func (f fakeDirectory) GetBank(context.Context, int64) (*models.Bank, error) {
	return f.bank, f.err
}

func TestLinkedAccounts(t *testing.T) {
	dir := fakeDirectory{
		sme:  &models.SME{ID: 1, BankID: 7, BankAccountNumber: "XX-0042"},
		bank: &models.Bank{ID: 7, Name: "ICICI Bank"},
	}
	accounts, err := LinkedAccounts(context.Background(), dir, 1)
	require.NoError(t, err)
	assert.Equal(t, []Account{{ID: 7, BankName: "ICICI Bank", AccountNumber: "XX-0042"}}, accounts)

	_, err = LinkedAccounts(context.Background(), fakeDirectory{err: errors.New("boom")}, 1)
	assert.Error(t, err)
}
