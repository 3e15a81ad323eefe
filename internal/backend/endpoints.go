package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"loanconnect/internal/models"
)

// --- Auth ---

// Me returns the signed-in user of the session.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GoogleCallback exchanges an OAuth code for a session. The session cookie is
// stored in the client's jar.
func (c *Client) GoogleCallback(ctx context.Context, code string) (*models.User, error) {
	var user models.User
	path := "/auth/google/callback?code=" + url.QueryEscape(code)
	if err := c.do(ctx, http.MethodGet, path, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout ends the session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// Refresh renews the session cookie.
func (c *Client) Refresh(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/refresh", nil, nil)
}

// --- SME ---

// GetSME returns one SME profile.
func (c *Client) GetSME(ctx context.Context, id int64) (*models.SME, error) {
	var sme models.SME
	if err := c.do(ctx, http.MethodGet, "/sme/"+strconv.FormatInt(id, 10), nil, &sme); err != nil {
		return nil, err
	}
	return &sme, nil
}

// CreateSME registers an SME.
func (c *Client) CreateSME(ctx context.Context, params models.CreateSMEParams) (*models.SME, error) {
	var sme models.SME
	if err := c.do(ctx, http.MethodPost, "/sme", params, &sme); err != nil {
		return nil, err
	}
	return &sme, nil
}

// --- Bank ---

// GetBank returns one bank.
func (c *Client) GetBank(ctx context.Context, id int64) (*models.Bank, error) {
	var bank models.Bank
	if err := c.do(ctx, http.MethodGet, "/bank/"+strconv.FormatInt(id, 10), nil, &bank); err != nil {
		return nil, err
	}
	return &bank, nil
}

// BanksByCountry lists the banks onboarded in a country.
func (c *Client) BanksByCountry(ctx context.Context, country string) ([]models.Bank, error) {
	var banks []models.Bank
	if err := c.do(ctx, http.MethodGet, "/bank/country/"+url.PathEscape(country), nil, &banks); err != nil {
		return nil, err
	}
	return banks, nil
}

// CreateBank registers a bank.
func (c *Client) CreateBank(ctx context.Context, params models.CreateBankParams) (*models.Bank, error) {
	var bank models.Bank
	if err := c.do(ctx, http.MethodPost, "/bank", params, &bank); err != nil {
		return nil, err
	}
	return &bank, nil
}

// --- Loan ---

// GetLoan returns one backend loan.
func (c *Client) GetLoan(ctx context.Context, id int64) (*models.RemoteLoan, error) {
	var loan models.RemoteLoan
	if err := c.do(ctx, http.MethodGet, "/loan/"+strconv.FormatInt(id, 10), nil, &loan); err != nil {
		return nil, err
	}
	return &loan, nil
}

// CreateLoan submits a loan application.
func (c *Client) CreateLoan(ctx context.Context, params models.CreateRemoteLoanParams) (*models.RemoteLoan, error) {
	var loan models.RemoteLoan
	if err := c.do(ctx, http.MethodPost, "/loan", params, &loan); err != nil {
		return nil, err
	}
	return &loan, nil
}

// ListLoans returns one page of all loans. Pages start at 1.
func (c *Client) ListLoans(ctx context.Context, page, perPage int) (*models.LoanPage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		q.Set("items_per_page", strconv.Itoa(perPage))
	}
	path := "/loans"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result models.LoanPage
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// LoansByBank lists the loans addressed to a bank.
func (c *Client) LoansByBank(ctx context.Context, bankID int64) ([]models.RemoteLoan, error) {
	var loans []models.RemoteLoan
	if err := c.do(ctx, http.MethodGet, "/loan/bank/"+strconv.FormatInt(bankID, 10), nil, &loans); err != nil {
		return nil, err
	}
	return loans, nil
}

// LoansBySME lists the loans of an SME. The backend answers 404 when the SME
// has none; that is reported as an empty list.
func (c *Client) LoansBySME(ctx context.Context, smeID int64) ([]models.RemoteLoan, error) {
	var loans []models.RemoteLoan
	err := c.do(ctx, http.MethodGet, "/loan/sme/"+strconv.FormatInt(smeID, 10), nil, &loans)
	if errors.Is(err, ErrNotFound) {
		return []models.RemoteLoan{}, nil
	}
	if err != nil {
		return nil, err
	}
	return loans, nil
}

// UpdateLoan patches status fields of a backend loan.
func (c *Client) UpdateLoan(ctx context.Context, id int64, params models.UpdateRemoteLoanParams) error {
	if err := c.do(ctx, http.MethodPatch, "/loan/"+strconv.FormatInt(id, 10), params, nil); err != nil {
		return fmt.Errorf("update loan %d: %w", id, err)
	}
	return nil
}
