// Package submission models the post-submit progress display as a fixed list
// of named, timed stages. The stages are presentation only.
package submission

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// ErrRunning is returned when Run is called on a sequence that is already running.
var ErrRunning = errors.New("submission sequence already running")

// Stage is one step of the display.
type Stage struct {
	ID          int           `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Duration    time.Duration `json:"-"`
}

// DefaultStages returns the four stages shown after a loan is submitted, each lasting d.
func DefaultStages(d time.Duration) []Stage {
	return []Stage{
		{ID: 1, Title: "Sharing Consent", Description: "Sharing approved consent by user from LoanConnect to SME bank", Duration: d},
		{ID: 2, Title: "Consent", Description: "Review and provide consent for data access and processing", Duration: d},
		{ID: 3, Title: "Data Upload", Description: "Upload required documents and supporting materials", Duration: d},
		{ID: 4, Title: "Secure Transfer", Description: "Transferring encrypted statements to the lending bank", Duration: d},
	}
}

// Observer is notified when a stage starts.
type Observer func(Stage)

// Progress is a snapshot of a sequence.
type Progress struct {
	Stage   *Stage `json:"stage,omitempty"`
	Index   int    `json:"index"`
	Total   int    `json:"total"`
	Running bool   `json:"running"`
	Done    bool   `json:"done"`
}

// Sequence walks through its stages once per Run.
type Sequence struct {
	mu      sync.Mutex
	stages  []Stage
	index   int
	running bool
	done    bool
}

// NewSequence creates a sequence over stages.
func NewSequence(stages []Stage) *Sequence {
	return &Sequence{stages: slices.Clone(stages), index: -1}
}

// Run shows every stage for its duration, calling observe as each one starts.
// It returns ctx.Err() if cancelled; the sequence can then be run again.
func (s *Sequence) Run(ctx context.Context, observe Observer) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrRunning
	}
	s.running = true
	s.done = false
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for i, stage := range s.stages {
		s.mu.Lock()
		s.index = i
		s.mu.Unlock()

		if observe != nil {
			observe(stage)
		}
		if err := wait(ctx, stage.Duration); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Current returns the stage being shown, if any.
func (s *Sequence) Current() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Progress{
		Index:   s.index,
		Total:   len(s.stages),
		Running: s.running,
		Done:    s.done,
	}
	if s.index >= 0 && s.index < len(s.stages) {
		stage := s.stages[s.index]
		p.Stage = &stage
	}
	return p
}

// Stages returns the configured stages.
func (s *Sequence) Stages() []Stage {
	return slices.Clone(s.stages)
}
