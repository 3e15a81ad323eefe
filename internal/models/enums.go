package models

// LoanStatus represents the lifecycle status of a loan.
type LoanStatus string

const (
	LoanStatusPending        LoanStatus = "pending"
	LoanStatusApproved       LoanStatus = "approved"
	LoanStatusRejected       LoanStatus = "rejected"
	LoanStatusUnderReview    LoanStatus = "under_review"
	LoanStatusCompleted      LoanStatus = "completed"
	LoanStatusCancelled      LoanStatus = "cancelled"
	LoanStatusPendingConsent LoanStatus = "pending_consent"
)

// IsTerminal returns true if the status is a terminal state.
func (s LoanStatus) IsTerminal() bool {
	switch s {
	case LoanStatusCompleted, LoanStatusCancelled, LoanStatusRejected:
		return true
	default:
		return false
	}
}

// IsKnown reports whether s is one of the declared statuses.
// Unknown values are still stored and passed through.
func (s LoanStatus) IsKnown() bool {
	switch s {
	case LoanStatusPending, LoanStatusApproved, LoanStatusRejected, LoanStatusUnderReview,
		LoanStatusCompleted, LoanStatusCancelled, LoanStatusPendingConsent:
		return true
	default:
		return false
	}
}

// ConsentStatus represents the data sharing consent granted by the SME.
type ConsentStatus string

const (
	ConsentStatusPending  ConsentStatus = "pending"
	ConsentStatusApproved ConsentStatus = "approved"
	ConsentStatusRejected ConsentStatus = "rejected"
)

// InsightsStatus drives which bank dashboard view renders.
type InsightsStatus string

const (
	InsightsStatusPending    InsightsStatus = "pending"
	InsightsStatusGenerating InsightsStatus = "generating"
	InsightsStatusGenerated  InsightsStatus = "generated"
	InsightsStatusFailed     InsightsStatus = "failed"
)

// EntityType is the role of the signed-in user.
type EntityType string

const (
	EntityTypeSME  EntityType = "sme"
	EntityTypeBank EntityType = "bank"
)

// ExportFormat selects the serialization of ExportLoans.
type ExportFormat string

const (
	ExportFormatJSON ExportFormat = "json"
	ExportFormatCSV  ExportFormat = "csv"
)
