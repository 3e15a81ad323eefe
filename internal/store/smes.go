package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"loanconnect/internal/models"
	"loanconnect/internal/storage"
)

// SMEStoreKey is the storage namespace of the SME store.
const SMEStoreKey = "sme-store"

type smeState struct {
	SMEs        []models.SME `json:"smes"`
	SelectedSME *models.SME  `json:"selectedSME"`
}

// SMEStore caches SME profiles fetched from the backend.
type SMEStore struct {
	mu       sync.RWMutex
	storage  storage.Storage
	logger   *zap.Logger
	state    smeState

	hydrated  bool
	ready     chan struct{}
	readyOnce sync.Once
}

// NewSMEStore creates an empty, unhydrated SME store backed by s.
func NewSMEStore(s storage.Storage, opts ...Option) *SMEStore {
	o := buildOptions(opts)
	return &SMEStore{
		storage: s,
		logger:  o.logger.Named("sme-store"),
		ready:   make(chan struct{}),
	}
}

// Hydrate loads the persisted snapshot, if any.
// The store is marked hydrated even when reading fails.
func (s *SMEStore) Hydrate(ctx context.Context) error {
	state, ok, err := load[smeState](ctx, s.storage, SMEStoreKey)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.markReady()

	if err != nil {
		s.logger.Warn("hydrate failed", zap.Error(err))
		return err
	}
	if ok {
		s.state = state
	}
	return nil
}

func (s *SMEStore) markReady() {
	s.hydrated = true
	s.readyOnce.Do(func() { close(s.ready) })
}

// Ready is closed once Hydrate has run.
func (s *SMEStore) Ready() <-chan struct{} {
	return s.ready
}

// Hydrated reports whether Hydrate has run.
func (s *SMEStore) Hydrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrated
}

func (s *SMEStore) mutate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn()
	state := s.state
	if state.SMEs == nil {
		state.SMEs = []models.SME{}
	}
	if err := save(s.storage, SMEStoreKey, state); err != nil {
		s.logger.Warn("persist failed", zap.Error(err))
	}
}

// AddSME stores an SME profile, replacing any entry with the same id.
func (s *SMEStore) AddSME(sme models.SME) {
	s.mutate(func() {
		for i := range s.state.SMEs {
			if s.state.SMEs[i].ID == sme.ID {
				s.state.SMEs[i] = sme
				return
			}
		}
		s.state.SMEs = append(s.state.SMEs, sme)
	})
}

// SetSMEs replaces the whole collection.
func (s *SMEStore) SetSMEs(smes []models.SME) {
	s.mutate(func() {
		s.state.SMEs = append([]models.SME(nil), smes...)
	})
}

// SetSelectedSME selects an SME; nil clears the selection.
func (s *SMEStore) SetSelectedSME(sme *models.SME) {
	s.mutate(func() {
		if sme == nil {
			s.state.SelectedSME = nil
			return
		}
		c := *sme
		s.state.SelectedSME = &c
	})
}

// SelectedSME returns the selected SME, if any.
func (s *SMEStore) SelectedSME() (models.SME, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.SelectedSME == nil {
		return models.SME{}, false
	}
	return *s.state.SelectedSME, true
}

// GetSMEs returns a copy of all SMEs.
func (s *SMEStore) GetSMEs() []models.SME {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.SME(nil), s.state.SMEs...)
}

// GetSME returns the SME with the given id.
func (s *SMEStore) GetSME(id int64) (models.SME, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sme := range s.state.SMEs {
		if sme.ID == id {
			return sme, true
		}
	}
	return models.SME{}, false
}
