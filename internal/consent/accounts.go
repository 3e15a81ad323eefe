package consent

import (
	"context"
	"fmt"

	"loanconnect/internal/models"
)

// Directory resolves SMEs and banks on the backend.
type Directory interface {
	GetSME(ctx context.Context, id int64) (*models.SME, error)
	GetBank(ctx context.Context, id int64) (*models.Bank, error)
}

// LinkedAccounts returns the accounts an SME can share data from: its
// registered account at its own bank.
func LinkedAccounts(ctx context.Context, dir Directory, smeID int64) ([]Account, error) {
	sme, err := dir.GetSME(ctx, smeID)
	if err != nil {
		return nil, fmt.Errorf("get sme %d: %w", smeID, err)
	}
	bank, err := dir.GetBank(ctx, sme.BankID)
	if err != nil {
		return nil, fmt.Errorf("get bank %d: %w", sme.BankID, err)
	}

	return []Account{{
		ID:            bank.ID,
		BankName:      bank.Name,
		AccountNumber: sme.BankAccountNumber,
	}}, nil
}
