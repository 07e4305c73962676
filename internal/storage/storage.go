// Package storage defines the key-value medium drafts are persisted to.
//
// A medium is a single shared namespace with no transactional isolation,
// the same shape as browser-local storage: string keys, string values,
// synchronous get/set/delete. Backends are swappable behind Storage.
package storage

import (
	"fmt"

	"github.com/hpungsan/draftkeep/internal/config"
	"github.com/hpungsan/draftkeep/internal/errors"
)

// Storage is the narrow interface every medium implements.
type Storage interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}

// Lister is implemented by media that can enumerate their keys.
type Lister interface {
	// Keys returns all keys starting with prefix, in ascending order.
	Keys(prefix string) ([]string, error)
}

// Closer is implemented by media holding resources.
type Closer interface {
	Close() error
}

// Open creates the medium selected by cfg.Backend.
// baseDir is where the sqlite database or the file directory lives.
func Open(cfg *config.Config, baseDir string) (Storage, error) {
	switch cfg.Backend {
	case "", config.BackendSQLite:
		s, err := OpenSQLite(baseDir, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendFile:
		f, err := NewFile(baseDir)
		if err != nil {
			return nil, err
		}
		return f, nil
	case config.BackendMemory:
		return NewMemory(0), nil
	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown backend %q (want sqlite, file, or memory)", cfg.Backend))
	}
}

// Unavailable is a medium that refuses every operation.
// Hosts fall back to it when the configured medium cannot be opened,
// so drafting degrades to a no-op instead of breaking the form.
type Unavailable struct {
	Reason string
}

func (u Unavailable) err() error {
	reason := u.Reason
	if reason == "" {
		reason = "no storage medium"
	}
	return errors.NewStorageUnavailable(reason)
}

// Get implements Storage.
func (u Unavailable) Get(string) (string, bool, error) { return "", false, u.err() }

// Set implements Storage.
func (u Unavailable) Set(string, string) error { return u.err() }

// Delete implements Storage.
func (u Unavailable) Delete(string) error { return u.err() }
