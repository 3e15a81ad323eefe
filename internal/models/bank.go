package models

// Bank represents a lending bank as returned by the backend.
type Bank struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Country         string  `json:"country,omitempty"`
	Description     string  `json:"description,omitempty"`
	Logo            string  `json:"logo,omitempty"`
	InterestRateMin float64 `json:"interest_rate_min"`
	InterestRateMax float64 `json:"interest_rate_max"`
}

// CreateBankParams contains parameters for registering a bank.
type CreateBankParams struct {
	Name            string  `json:"name"`
	Country         string  `json:"country"`
	InterestRateMin float64 `json:"interest_rate_min"`
	InterestRateMax float64 `json:"interest_rate_max"`
}

// FinancingType is one of the selectable loan categories.
type FinancingType struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// FinancingTypes lists the categories offered by the wizard.
var FinancingTypes = []FinancingType{
	{ID: "working-capital", Title: "Working Capital Loan", Description: "Short-term financing for operational needs"},
	{ID: "equipment", Title: "Equipment/Machinery Loan", Description: "Funding for business equipment and machinery"},
	{ID: "trade", Title: "Trade Financing", Description: "Import/export and trade finance solutions"},
	{ID: "other", Title: "Other", Description: "Other business financing requirements"},
}

// Countries lists the countries with onboarded banks.
var Countries = []string{
	"India",
	"United States",
	"United Kingdom",
	"Singapore",
}

// IsFinancingType reports whether title matches a known financing type.
func IsFinancingType(title string) bool {
	for _, ft := range FinancingTypes {
		if ft.Title == title {
			return true
		}
	}
	return false
}
