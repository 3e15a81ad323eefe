package store

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"loanconnect/internal/models"
)

// SetLoanFilters merges the dimensions set in f into the active filters.
func (s *LoanStore) SetLoanFilters(f models.LoanFilters) {
	s.mutate(func() {
		s.filters = s.filters.Merge(f)
	})
}

// ClearLoanFilters removes every filter.
func (s *LoanStore) ClearLoanFilters() {
	s.mutate(func() {
		s.filters = models.LoanFilters{}
	})
}

// LoanFilters returns the active filters.
func (s *LoanStore) LoanFilters() models.LoanFilters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters
}

// GetFilteredLoans applies the active filters to the whole collection.
func (s *LoanStore) GetFilteredLoans() []models.Loan {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f := s.filters
	var out []models.Loan
	for _, l := range s.loans {
		if matchesFilters(l, f) {
			out = append(out, l.Clone())
		}
	}
	return out
}

func matchesFilters(l models.Loan, f models.LoanFilters) bool {
	if len(f.Status) > 0 && !slices.Contains(f.Status, string(l.Status)) {
		return false
	}
	if len(f.Country) > 0 && !slices.Contains(f.Country, l.Country) {
		return false
	}
	if len(f.Bank) > 0 && !slices.Contains(f.Bank, l.BankName) {
		return false
	}
	if f.DateRange != nil {
		date, ok := loanDate(l)
		if !ok || date.Before(f.DateRange.Start) || date.After(f.DateRange.End) {
			return false
		}
	}
	if f.AmountRange != nil {
		amount, err := decimal.NewFromString(l.Amount)
		if err != nil {
			return false
		}
		v := amount.InexactFloat64()
		if v < f.AmountRange.Min || v > f.AmountRange.Max {
			return false
		}
	}
	return true
}

// loanDate is created_at, falling back to application_date.
func loanDate(l models.Loan) (time.Time, bool) {
	if !l.CreatedAt.IsZero() {
		return l.CreatedAt, true
	}
	if l.ApplicationDate != nil {
		return *l.ApplicationDate, true
	}
	return time.Time{}, false
}

// GetLoanStats scans the collection once and aggregates counts and amounts.
func (s *LoanStore) GetLoanStats() models.LoanStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats models.LoanStats
	total := decimal.Zero
	for i := range s.loans {
		l := &s.loans[i]
		switch l.Status {
		case models.LoanStatusPending:
			stats.Pending++
		case models.LoanStatusApproved:
			stats.Approved++
		case models.LoanStatusRejected:
			stats.Rejected++
		}
		total = total.Add(l.AmountValue())
	}

	stats.Total = len(s.loans)
	stats.TotalAmount = total.InexactFloat64()
	if stats.Total > 0 {
		stats.AverageAmount = total.Div(decimal.NewFromInt(int64(stats.Total))).InexactFloat64()
	}
	return stats
}

// SearchLoans returns loans whose type, bank name, country, amount or status
// contains query, ignoring case.
func (s *LoanStore) SearchLoans(query string) []models.Loan {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	var out []models.Loan
	for _, l := range s.loans {
		fields := []string{l.Type, l.BankName, l.Country, l.Amount, string(l.Status)}
		for _, field := range fields {
			if strings.Contains(strings.ToLower(field), q) {
				out = append(out, l.Clone())
				break
			}
		}
	}
	return out
}

// ExportLoans serializes the whole collection as indented JSON or as CSV.
func (s *LoanStore) ExportLoans(format models.ExportFormat) (string, error) {
	loans := s.GetLoans()

	switch format {
	case models.ExportFormatJSON:
		data, err := json.MarshalIndent(loans, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode loans: %w", err)
		}
		return string(data), nil
	case models.ExportFormatCSV:
		return exportCSV(loans), nil
	default:
		return "", fmt.Errorf("unsupported export format %q", format)
	}
}

var csvColumns = []string{
	"id", "type", "amount", "purpose", "status", "consent_status", "insights_status",
	"interest_rate_min", "interest_rate_max", "duration", "lending_bank_id", "sme_id",
	"country", "bank_name", "created_at", "updated_at", "application_date",
	"approval_date", "rejection_reason", "notes", "server_id",
}

// exportCSV writes a naive CSV: string values containing a comma are quoted,
// embedded quotes are left as they are.
func exportCSV(loans []models.Loan) string {
	if len(loans) == 0 {
		return ""
	}

	lines := make([]string, 0, len(loans)+1)
	lines = append(lines, strings.Join(csvColumns, ","))
	for _, l := range loans {
		values := []string{
			quote(l.ID), quote(l.Type), quote(l.Amount), quote(l.Purpose),
			quote(string(l.Status)), quote(string(l.ConsentStatus)), quote(string(l.InsightsStatus)),
			formatFloat(l.InterestRateMin), formatFloat(l.InterestRateMax),
			strconv.Itoa(l.Duration), formatInt(l.LendingBankID), formatInt(l.SMEID),
			quote(l.Country), quote(l.BankName),
			formatTime(&l.CreatedAt), formatTime(&l.UpdatedAt),
			formatTime(l.ApplicationDate), formatTime(l.ApprovalDate),
			quote(l.RejectionReason), quote(l.Notes), formatInt(l.ServerID),
		}
		lines = append(lines, strings.Join(values, ","))
	}
	return strings.Join(lines, "\n")
}

func quote(v string) string {
	if strings.Contains(v, ",") {
		return `"` + v + `"`
	}
	return v
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
