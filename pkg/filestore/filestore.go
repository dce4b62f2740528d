// Package filestore implements store.Store on a directory tree. Every key
// maps to one file; writes go through a temp file and a rename.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emenda-labs/agentver/core/store"
)

const (
	lockDir      = ".locks"
	tempPrefix   = ".tmp-"
	pollInterval = 20 * time.Millisecond
)

var _ store.Store = (*Store)(nil)

// Store keeps documents as files under Root.
type Store struct {
	root  string
	locks store.KeyedMutex
}

// Open creates root if needed and returns a Store rooted there.
func Open(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("filestore: root directory is required")
	}
	if err := os.MkdirAll(filepath.Join(root, lockDir), 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Root returns the directory holding the documents.
func (s *Store) Root() string { return s.root }

func (s *Store) path(key string) (string, error) {
	if err := store.ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating directory for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", key, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("replacing %s: %w", key, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == lockDir && filepath.Dir(p) == s.root {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), tempPrefix) || d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %q: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Lock takes the in-process lock for key, then an flock(2) on a lock file
// so that separate processes sharing Root are excluded too.
func (s *Store) Lock(ctx context.Context, key string) (func(), error) {
	if err := store.ValidateKey(key); err != nil {
		return nil, err
	}
	unlockLocal, err := s.locks.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	lockPath := filepath.Join(s.root, lockDir, url.PathEscape(key)+".lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		unlockLocal()
		return nil, fmt.Errorf("opening lock file for %s: %w", key, err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		ok, err := tryLockFile(f)
		if err != nil {
			f.Close()
			unlockLocal()
			return nil, fmt.Errorf("locking %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			f.Close()
			unlockLocal()
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			unlockFile(f)
			f.Close()
			unlockLocal()
		})
	}, nil
}
