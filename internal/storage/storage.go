// Package storage provides the key-value persistence used by the client stores.
//
// The interface mirrors the browser storage API the stores were designed
// around: whole snapshots are read and written under a namespace key.
// A missing key reads as (nil, nil).
package storage

import (
	"context"
	"errors"
	"regexp"
)

// Storage is a best-effort key-value persistence backend.
type Storage interface {
	GetItem(ctx context.Context, key string) ([]byte, error)
	SetItem(ctx context.Context, key string, value []byte) error
	RemoveItem(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// ErrInvalidKey is returned for keys outside [A-Za-z0-9_-].
var ErrInvalidKey = errors.New("invalid storage key")

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateKey checks that key is safe to use as a file name or redis key suffix.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return ErrInvalidKey
	}
	return nil
}
