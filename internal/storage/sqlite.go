package storage

import (
	"database/sql"

	"github.com/hpungsan/draftkeep/internal/config"
	"github.com/hpungsan/draftkeep/internal/db"
	"github.com/hpungsan/draftkeep/internal/errors"
)

// SQLite stores entries in the drafts.db entries table.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite initializes baseDir/drafts.db and applies pool settings from cfg.
func OpenSQLite(baseDir string, cfg *config.Config) (*SQLite, error) {
	database, err := db.Init(baseDir)
	if err != nil {
		return nil, errors.NewStorageUnavailable(err.Error())
	}
	db.ConfigurePool(database, cfg)
	return &SQLite{db: database}, nil
}

// NewSQLite wraps an already-initialized database.
func NewSQLite(database *sql.DB) *SQLite {
	return &SQLite{db: database}
}

// DB returns the underlying handle.
func (s *SQLite) DB() *sql.DB { return s.db }

// Get implements Storage.
func (s *SQLite) Get(key string) (string, bool, error) {
	e, err := db.GetEntry(s.db, key)
	if errors.Is(err, errors.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return e.Value, true, nil
}

// Set implements Storage.
func (s *SQLite) Set(key, value string) error {
	return db.PutEntry(s.db, key, value)
}

// Delete implements Storage.
func (s *SQLite) Delete(key string) error {
	_, err := db.DeleteEntry(s.db, key)
	return err
}

// Keys implements Lister.
func (s *SQLite) Keys(prefix string) ([]string, error) {
	return db.ListKeys(s.db, prefix)
}

// Close implements Closer.
func (s *SQLite) Close() error {
	return s.db.Close()
}
