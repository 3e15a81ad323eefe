package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Loan is a loan record held in the client-side loan store.
// Field names follow the persisted state shape so existing snapshots rehydrate.
type Loan struct {
	ID              string         `json:"id"`
	Type            string         `json:"type,omitempty"`
	Amount          string         `json:"amount"`
	Purpose         string         `json:"purpose"`
	Status          LoanStatus     `json:"status"`
	ConsentStatus   ConsentStatus  `json:"consent_status,omitempty"`
	InsightsStatus  InsightsStatus `json:"insights_status,omitempty"`
	InterestRateMin *float64       `json:"interest_rate_min,omitempty"`
	InterestRateMax *float64       `json:"interest_rate_max,omitempty"`
	Duration        int            `json:"duration"`
	LendingBankID   *int64         `json:"lending_bank_id,omitempty"`
	SMEID           *int64         `json:"sme_id,omitempty"`
	Country         string         `json:"country,omitempty"`
	BankName        string         `json:"bank_name,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	ApplicationDate *time.Time     `json:"application_date,omitempty"`
	ApprovalDate    *time.Time     `json:"approval_date,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	ServerID        *int64         `json:"server_id,omitempty"`
}

// AmountValue parses the string amount. Unparseable amounts count as zero.
func (l *Loan) AmountValue() decimal.Decimal {
	d, err := decimal.NewFromString(l.Amount)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// IsSubmitted returns true once the backend has accepted the loan.
func (l *Loan) IsSubmitted() bool {
	return l.ServerID != nil
}

// RemoteParams maps a local loan to the body of POST /loan.
// Unlike AmountValue, an unparseable amount is an error here.
func (l *Loan) RemoteParams() (CreateRemoteLoanParams, error) {
	amount, err := decimal.NewFromString(l.Amount)
	if err != nil {
		return CreateRemoteLoanParams{}, fmt.Errorf("invalid amount %q: %w", l.Amount, err)
	}
	if !amount.IsPositive() {
		return CreateRemoteLoanParams{}, fmt.Errorf("invalid amount %q: must be positive", l.Amount)
	}

	p := CreateRemoteLoanParams{
		Type:           l.Type,
		Amount:         amount.InexactFloat64(),
		Purpose:        l.Purpose,
		Duration:       l.Duration,
		Status:         string(l.Status),
		ConsentStatus:  string(l.ConsentStatus),
		InsightsStatus: string(l.InsightsStatus),
	}
	if l.InterestRateMin != nil {
		p.InterestRateMin = *l.InterestRateMin
	}
	if l.InterestRateMax != nil {
		p.InterestRateMax = *l.InterestRateMax
	}
	if l.LendingBankID != nil {
		p.LendingBankID = *l.LendingBankID
	}
	if l.SMEID != nil {
		p.SMEID = *l.SMEID
	}
	return p, nil
}

// Clone returns a deep copy so callers cannot mutate store state.
func (l Loan) Clone() Loan {
	c := l
	c.InterestRateMin = clonePtr(l.InterestRateMin)
	c.InterestRateMax = clonePtr(l.InterestRateMax)
	c.LendingBankID = clonePtr(l.LendingBankID)
	c.SMEID = clonePtr(l.SMEID)
	c.ApplicationDate = clonePtr(l.ApplicationDate)
	c.ApprovalDate = clonePtr(l.ApprovalDate)
	c.ServerID = clonePtr(l.ServerID)
	return c
}

// NewLoanParams contains the caller-supplied fields of a new loan.
// id, created_at and updated_at are generated by the store.
type NewLoanParams struct {
	Type            string
	Amount          string
	Purpose         string
	Status          LoanStatus
	ConsentStatus   ConsentStatus
	InsightsStatus  InsightsStatus
	InterestRateMin *float64
	InterestRateMax *float64
	Duration        int
	LendingBankID   *int64
	SMEID           *int64
	Country         string
	BankName        string
	ApplicationDate *time.Time
	Notes           string
}

// UpdateLoanParams contains the fields to merge into an existing loan.
// Nil fields are left untouched.
type UpdateLoanParams struct {
	Type            *string
	Amount          *string
	Purpose         *string
	Status          *LoanStatus
	ConsentStatus   *ConsentStatus
	InsightsStatus  *InsightsStatus
	InterestRateMin *float64
	InterestRateMax *float64
	Duration        *int
	LendingBankID   *int64
	SMEID           *int64
	Country         *string
	BankName        *string
	ApprovalDate    *time.Time
	RejectionReason *string
	Notes           *string
	ServerID        *int64
}

// Apply merges the non-nil fields into l.
func (p UpdateLoanParams) Apply(l *Loan) {
	if p.Type != nil {
		l.Type = *p.Type
	}
	if p.Amount != nil {
		l.Amount = *p.Amount
	}
	if p.Purpose != nil {
		l.Purpose = *p.Purpose
	}
	if p.Status != nil {
		l.Status = *p.Status
	}
	if p.ConsentStatus != nil {
		l.ConsentStatus = *p.ConsentStatus
	}
	if p.InsightsStatus != nil {
		l.InsightsStatus = *p.InsightsStatus
	}
	if p.InterestRateMin != nil {
		l.InterestRateMin = clonePtr(p.InterestRateMin)
	}
	if p.InterestRateMax != nil {
		l.InterestRateMax = clonePtr(p.InterestRateMax)
	}
	if p.Duration != nil {
		l.Duration = *p.Duration
	}
	if p.LendingBankID != nil {
		l.LendingBankID = clonePtr(p.LendingBankID)
	}
	if p.SMEID != nil {
		l.SMEID = clonePtr(p.SMEID)
	}
	if p.Country != nil {
		l.Country = *p.Country
	}
	if p.BankName != nil {
		l.BankName = *p.BankName
	}
	if p.ApprovalDate != nil {
		l.ApprovalDate = clonePtr(p.ApprovalDate)
	}
	if p.RejectionReason != nil {
		l.RejectionReason = *p.RejectionReason
	}
	if p.Notes != nil {
		l.Notes = *p.Notes
	}
	if p.ServerID != nil {
		l.ServerID = clonePtr(p.ServerID)
	}
}

// ApplicationData is the wizard-shaped input of CreateLoanFromApplication.
type ApplicationData struct {
	Type            string  `json:"type"`
	Amount          string  `json:"amount"`
	Country         string  `json:"country"`
	BankName        string  `json:"bankName"`
	SMEID           int64   `json:"smeId"`
	BankID          int64   `json:"bankId"`
	InterestRateMin float64 `json:"interestRateMin"`
	InterestRateMax float64 `json:"interestRateMax"`
	Duration        int     `json:"duration"`
}

// DateRange bounds the created_at of filtered loans (inclusive).
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AmountRange bounds the parsed amount of filtered loans (inclusive).
type AmountRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// LoanFilters contains in-memory filter parameters.
// An empty dimension does not restrict results.
type LoanFilters struct {
	Status      []string     `json:"status,omitempty"`
	Country     []string     `json:"country,omitempty"`
	Bank        []string     `json:"bank,omitempty"`
	DateRange   *DateRange   `json:"dateRange,omitempty"`
	AmountRange *AmountRange `json:"amountRange,omitempty"`
}

// Merge overlays the dimensions set in other onto f.
func (f LoanFilters) Merge(other LoanFilters) LoanFilters {
	if other.Status != nil {
		f.Status = other.Status
	}
	if other.Country != nil {
		f.Country = other.Country
	}
	if other.Bank != nil {
		f.Bank = other.Bank
	}
	if other.DateRange != nil {
		f.DateRange = other.DateRange
	}
	if other.AmountRange != nil {
		f.AmountRange = other.AmountRange
	}
	return f
}

// LoanStats contains aggregate counts over the loan store.
type LoanStats struct {
	Total         int     `json:"total"`
	Pending       int     `json:"pending"`
	Approved      int     `json:"approved"`
	Rejected      int     `json:"rejected"`
	TotalAmount   float64 `json:"totalAmount"`
	AverageAmount float64 `json:"averageAmount"`
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
