// Package upload stages the statement files of a loan application.
//
// Files are validated on arrival and then run through a simulated upload that
// advances progress on a fixed tick. No bytes are transferred.
package upload

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MaxFileSize is the largest accepted file, in bytes.
const MaxFileSize = 10 << 20

// progressStep is the progress added per tick.
const progressStep = 10

// AcceptedExtensions lists the spreadsheet formats the banks can ingest.
var AcceptedExtensions = []string{".xls", ".xlsx", ".csv"}

var (
	ErrInvalidType = errors.New("invalid file type, upload Excel (.xls, .xlsx) or CSV (.csv) files only")
	ErrTooLarge    = errors.New("file size exceeds 10MB limit")
	ErrDuplicate   = errors.New("file has already been uploaded")
)

// Status is the upload state of a staged file.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

// Candidate describes a file offered for staging.
type Candidate struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// File is a staged file.
type File struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	Status       Status `json:"status"`
	Progress     int    `json:"progress"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// ValidationError reports why a candidate was not staged.
type ValidationError struct {
	Name string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Stager holds the staged files of one application.
type Stager struct {
	mu     sync.Mutex
	files  []*File
	tick   time.Duration
	logger *zap.Logger

	cancel context.CancelFunc
	group  *errgroup.Group
	ctx    context.Context
}

// NewStager creates an empty stager. Simulated uploads stop when ctx is done or Close is called.
func NewStager(ctx context.Context, tick time.Duration, logger *zap.Logger) *Stager {
	if tick <= 0 {
		tick = time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	return &Stager{
		tick:   tick,
		logger: logger,
		cancel: cancel,
		group:  g,
		ctx:    gctx,
	}
}

// Add validates and stages candidates. Every rejected candidate yields one
// *ValidationError; accepted files start uploading immediately.
func (s *Stager) Add(candidates ...Candidate) ([]File, []error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		accepted []File
		errs     []error
	)
	for _, c := range candidates {
		if err := s.validateLocked(c); err != nil {
			errs = append(errs, &ValidationError{Name: c.Name, Err: err})
			continue
		}

		f := &File{
			ID:     uuid.NewString(),
			Name:   c.Name,
			Size:   c.Size,
			Status: StatusPending,
		}
		s.files = append(s.files, f)
		accepted = append(accepted, *f)

		id := f.ID
		s.group.Go(func() error {
			return s.simulate(id)
		})
	}
	return accepted, errs
}

func (s *Stager) validateLocked(c Candidate) error {
	ext := strings.ToLower(filepath.Ext(c.Name))
	if !slices.Contains(AcceptedExtensions, ext) {
		return ErrInvalidType
	}
	if c.Size > MaxFileSize {
		return ErrTooLarge
	}
	for _, f := range s.files {
		if f.Name == c.Name && f.Size == c.Size {
			return ErrDuplicate
		}
	}
	return nil
}

// simulate advances one file to success. Removing the file ends it early.
func (s *Stager) simulate(id string) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.mu.Lock()
			if f := s.findLocked(id); f != nil && f.Status != StatusSuccess {
				f.Status = StatusError
				f.ErrorMessage = "upload cancelled"
			}
			s.mu.Unlock()
			return s.ctx.Err()
		case <-ticker.C:
		}

		s.mu.Lock()
		f := s.findLocked(id)
		if f == nil {
			s.mu.Unlock()
			return nil
		}
		f.Progress += progressStep
		if f.Progress >= 100 {
			f.Progress = 100
			f.Status = StatusSuccess
		} else {
			f.Status = StatusUploading
		}
		done := f.Status == StatusSuccess
		s.mu.Unlock()

		if done {
			s.logger.Debug("file staged", zap.String("id", id))
			return nil
		}
	}
}

func (s *Stager) findLocked(id string) *File {
	for _, f := range s.files {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// Remove unstages a file. It reports whether the file existed.
func (s *Stager) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.files, func(f *File) bool { return f.ID == id })
	if i < 0 {
		return false
	}
	s.files = slices.Delete(s.files, i, i+1)
	return true
}

// Files returns a snapshot of the staged files in arrival order.
func (s *Stager) Files() []File {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]File, len(s.files))
	for i, f := range s.files {
		out[i] = *f
	}
	return out
}

// CanProceed reports whether at least one file is staged and all succeeded.
func (s *Stager) CanProceed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.files) == 0 {
		return false
	}
	for _, f := range s.files {
		if f.Status != StatusSuccess {
			return false
		}
	}
	return true
}

// Close stops pending uploads and waits for them to exit.
func (s *Stager) Close() error {
	s.cancel()
	err := s.group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
