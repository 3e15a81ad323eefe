package models

// SME represents a small or medium enterprise applying for loans.
type SME struct {
	ID                    int64  `json:"id"`
	Name                  string `json:"name"`
	RegistrationNumber    string `json:"registration_number"`
	Country               string `json:"country"`
	Director              string `json:"director"`
	DIN                   string `json:"din"`
	RegisteredPhoneNumber string `json:"registered_phone_number"`
	BankAccountNumber     string `json:"bank_account_number"`
	BankID                int64  `json:"bank_id"`
}

// CreateSMEParams contains parameters for registering an SME.
type CreateSMEParams struct {
	Name                  string `json:"name"`
	RegistrationNumber    string `json:"registration_number"`
	Country               string `json:"country"`
	Director              string `json:"director"`
	DIN                   string `json:"din"`
	RegisteredPhoneNumber string `json:"registered_phone_number"`
	BankAccountNumber     string `json:"bank_account_number"`
	BankID                int64  `json:"bank_id"`
}

// User is the signed-in account returned by /auth/me.
type User struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	IsFirstTime bool       `json:"isFirstTime"`
	Picture     string     `json:"picture,omitempty"`
	EntityID    *int64     `json:"entityId,omitempty"`
	EntityType  EntityType `json:"entityType,omitempty"`
}

// IsSME returns true if the user acts for an SME.
func (u *User) IsSME() bool {
	return u.EntityType == EntityTypeSME
}

// IsBank returns true if the user acts for a lending bank.
func (u *User) IsBank() bool {
	return u.EntityType == EntityTypeBank
}

// RemoteLoan is a loan row as stored by the backend.
type RemoteLoan struct {
	ID              int64   `json:"id"`
	Type            string  `json:"type"`
	Amount          float64 `json:"amount"`
	Purpose         string  `json:"purpose"`
	InterestRateMin float64 `json:"interest_rate_min"`
	InterestRateMax float64 `json:"interest_rate_max"`
	Duration        int     `json:"duration"`
	Status          string  `json:"status"`
	ConsentStatus   string  `json:"consent_status"`
	InsightsStatus  string  `json:"insights_status"`
	LendingBankID   int64   `json:"lending_bank_id"`
	SMEID           int64   `json:"sme_id"`
}

// CreateRemoteLoanParams is the body of POST /loan.
type CreateRemoteLoanParams struct {
	Type            string  `json:"type"`
	Amount          float64 `json:"amount"`
	Purpose         string  `json:"purpose"`
	InterestRateMin float64 `json:"interest_rate_min"`
	InterestRateMax float64 `json:"interest_rate_max"`
	Duration        int     `json:"duration"`
	Status          string  `json:"status"`
	ConsentStatus   string  `json:"consent_status"`
	InsightsStatus  string  `json:"insights_status"`
	LendingBankID   int64   `json:"lending_bank_id"`
	SMEID           int64   `json:"sme_id"`
}

// UpdateRemoteLoanParams is the body of PATCH /loan/{id}.
type UpdateRemoteLoanParams struct {
	Status         *string `json:"status,omitempty"`
	ConsentStatus  *string `json:"consent_status,omitempty"`
	InsightsStatus *string `json:"insights_status,omitempty"`
}

// Application is a read-only listing row joining a backend loan with display names.
// SME views fill BankName and Country from the lending bank; bank views fill the SME
// columns and the SME's own bank.
type Application struct {
	LoanID             int64   `json:"loan_id"`
	Type               string  `json:"type"`
	Purpose            string  `json:"purpose"`
	Amount             float64 `json:"amount"`
	Status             string  `json:"status"`
	Closed             bool    `json:"closed"`
	ConsentStatus      string  `json:"consent_status"`
	InsightsStatus     string  `json:"insights_status"`
	InterestRateMin    float64 `json:"interest_rate_min"`
	InterestRateMax    float64 `json:"interest_rate_max"`
	Duration           int     `json:"duration"`
	BankID             int64   `json:"bank_id"`
	BankName           string  `json:"bank_name,omitempty"`
	Country            string  `json:"country,omitempty"`
	SMEID              int64   `json:"sme_id"`
	SMEName            string  `json:"sme_name,omitempty"`
	PhoneNumber        string  `json:"phone_number,omitempty"`
	RegistrationNumber string  `json:"registration_number,omitempty"`
	SMEBankName        string  `json:"sme_bank_name,omitempty"`
	SMEBankCountry     string  `json:"sme_bank_country,omitempty"`
}

// LoanPage is the paginated body of GET /loans.
type LoanPage struct {
	Data         []RemoteLoan `json:"data"`
	TotalCount   int          `json:"total_count"`
	HasMore      bool         `json:"has_more"`
	Page         int          `json:"page"`
	ItemsPerPage int          `json:"items_per_page"`
}
