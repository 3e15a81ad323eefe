// Package store holds the client-side state containers: the loan store and the SME store.
//
// Both stores keep their state in memory and write a snapshot to a storage
// backend after every mutation. Hydration is an explicit second phase: a new
// store reads as empty until Hydrate is called, so a caller that forgets to
// hydrate observes the default state rather than the persisted one.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"loanconnect/internal/storage"
)

// stateVersion is written with every snapshot; bump it when the shape changes.
const stateVersion = 0

// persistTimeout bounds a single snapshot write.
const persistTimeout = 5 * time.Second

type envelope[T any] struct {
	State   T   `json:"state"`
	Version int `json:"version"`
}

func save[T any](s storage.Storage, key string, state T) error {
	data, err := json.Marshal(envelope[T]{State: state, Version: stateVersion})
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	return s.SetItem(ctx, key, data)
}

// load returns ok=false when nothing was persisted under key.
func load[T any](ctx context.Context, s storage.Storage, key string) (state T, ok bool, err error) {
	data, err := s.GetItem(ctx, key)
	if err != nil {
		return state, false, fmt.Errorf("read %s: %w", key, err)
	}
	if data == nil {
		return state, false, nil
	}

	var env envelope[T]
	if err := json.Unmarshal(data, &env); err != nil {
		return state, false, fmt.Errorf("decode %s: %w", key, err)
	}
	if env.Version != stateVersion {
		return state, false, fmt.Errorf("decode %s: unsupported version %d", key, env.Version)
	}
	return env.State, true, nil
}
