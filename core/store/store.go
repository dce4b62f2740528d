// Package store defines the document store that holds version histories,
// backups, migration guides and the dependency graph.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when no document exists under the key.
var ErrNotFound = errors.New("document not found")

// Store is a key/value document store with per-key advisory locks.
// Keys are slash-separated relative paths such as "agents/a/history.json".
type Store interface {
	// Get returns the document stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put atomically replaces the document stored under key.
	Put(ctx context.Context, key string, data []byte) error

	// List returns the sorted keys that start with prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Lock blocks until the caller holds the lock for key or ctx is done.
	// The returned func releases the lock and is safe to call twice.
	Lock(ctx context.Context, key string) (func(), error)
}

// ValidateKey rejects keys that are empty, absolute or that escape the
// store root.
func ValidateKey(key string) error {
	if key == "" {
		return errors.New("empty key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid key %q", key)
		}
	}
	return nil
}

// GetJSON loads the document under key and decodes it into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// PutJSON encodes v as indented JSON and stores it under key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.Put(ctx, key, append(data, '\n'))
}
