// Package listing builds the read-only application tables shown to SMEs and banks.
//
// Each row joins a backend loan with display names looked up on the backend.
// Lookups run concurrently, one per distinct id. A failed lookup leaves the
// name empty instead of failing the whole table.
package listing

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"loanconnect/internal/models"
)

const maxLookups = 8

// Backend is the part of the lending API the listings read from.
type Backend interface {
	LoansBySME(ctx context.Context, smeID int64) ([]models.RemoteLoan, error)
	LoansByBank(ctx context.Context, bankID int64) ([]models.RemoteLoan, error)
	GetSME(ctx context.Context, id int64) (*models.SME, error)
	GetBank(ctx context.Context, id int64) (*models.Bank, error)
}

// Service builds application listings.
type Service struct {
	backend Backend
	logger  *zap.Logger
}

// NewService creates a listing service.
func NewService(backend Backend, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{backend: backend, logger: logger}
}

// SMEApplications lists the loans of an SME with the lending bank's name and country.
func (s *Service) SMEApplications(ctx context.Context, smeID int64) ([]models.Application, error) {
	loans, err := s.backend.LoansBySME(ctx, smeID)
	if err != nil {
		return nil, fmt.Errorf("list loans of sme %d: %w", smeID, err)
	}

	banks := s.banks(ctx, bankIDs(loans))

	rows := make([]models.Application, len(loans))
	for i, l := range loans {
		rows[i] = s.row(l)
		if b, ok := banks[l.LendingBankID]; ok {
			rows[i].BankName = b.Name
			rows[i].Country = b.Country
		}
	}
	return rows, nil
}

// BankApplications lists the loans requested from a bank with the applicant's
// details and the applicant's own bank.
func (s *Service) BankApplications(ctx context.Context, bankID int64) ([]models.Application, error) {
	loans, err := s.backend.LoansByBank(ctx, bankID)
	if err != nil {
		return nil, fmt.Errorf("list loans of bank %d: %w", bankID, err)
	}

	smeIDs := make([]int64, 0, len(loans))
	for _, l := range loans {
		smeIDs = append(smeIDs, l.SMEID)
	}
	smes := s.smes(ctx, smeIDs)

	ownBanks := make([]int64, 0, len(smes))
	for _, sme := range smes {
		ownBanks = append(ownBanks, sme.BankID)
	}
	banks := s.banks(ctx, ownBanks)

	rows := make([]models.Application, len(loans))
	for i, l := range loans {
		rows[i] = s.row(l)
		sme, ok := smes[l.SMEID]
		if !ok {
			continue
		}
		rows[i].SMEName = sme.Name
		rows[i].PhoneNumber = sme.RegisteredPhoneNumber
		rows[i].RegistrationNumber = sme.RegistrationNumber
		if b, ok := banks[sme.BankID]; ok {
			rows[i].SMEBankName = b.Name
			rows[i].SMEBankCountry = b.Country
		}
	}
	return rows, nil
}

// row copies the loan fields shared by both projections. Unknown statuses are
// passed through as received.
func (s *Service) row(l models.RemoteLoan) models.Application {
	status := models.LoanStatus(l.Status)
	if !status.IsKnown() {
		s.logger.Debug("unknown loan status", zap.Int64("loan_id", l.ID), zap.String("status", l.Status))
	}
	return models.Application{
		LoanID:          l.ID,
		Type:            l.Type,
		Purpose:         l.Purpose,
		Amount:          l.Amount,
		Status:          l.Status,
		Closed:          status.IsTerminal(),
		ConsentStatus:   l.ConsentStatus,
		InsightsStatus:  l.InsightsStatus,
		InterestRateMin: l.InterestRateMin,
		InterestRateMax: l.InterestRateMax,
		Duration:        l.Duration,
		BankID:          l.LendingBankID,
		SMEID:           l.SMEID,
	}
}

func bankIDs(loans []models.RemoteLoan) []int64 {
	ids := make([]int64, 0, len(loans))
	for _, l := range loans {
		ids = append(ids, l.LendingBankID)
	}
	return ids
}

func (s *Service) banks(ctx context.Context, ids []int64) map[int64]models.Bank {
	return lookup(ctx, s.logger.With(zap.String("entity", "bank")), ids, s.backend.GetBank)
}

func (s *Service) smes(ctx context.Context, ids []int64) map[int64]models.SME {
	return lookup(ctx, s.logger.With(zap.String("entity", "sme")), ids, s.backend.GetSME)
}

// lookup fetches each distinct non-zero id once. Failed lookups are logged and
// left out of the result.
func lookup[T any](ctx context.Context, logger *zap.Logger, ids []int64, get func(context.Context, int64) (*T, error)) map[int64]T {
	var (
		mu  sync.Mutex
		out = make(map[int64]T, len(ids))
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxLookups)

	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true

		id := id
		g.Go(func() error {
			v, err := get(ctx, id)
			if err != nil || v == nil {
				logger.Warn("lookup failed", zap.Int64("id", id), zap.Error(err))
				return nil
			}
			mu.Lock()
			out[id] = *v
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
