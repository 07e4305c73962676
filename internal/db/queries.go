package db

import (
	"database/sql"
	"time"

	"github.com/hpungsan/draftkeep/internal/errors"
)

// Entry is one stored key-value row.
type Entry struct {
	Key       string
	Value     string
	UpdatedAt int64 // Unix milliseconds
}

// GetEntry retrieves the value stored under key.
func GetEntry(db *sql.DB, key string) (*Entry, error) {
	query := `SELECT key, value, updated_at FROM entries WHERE key = ?`

	var e Entry
	err := db.QueryRow(query, key).Scan(&e.Key, &e.Value, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(key)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &e, nil
}

// PutEntry inserts or replaces the value stored under key in a single statement.
func PutEntry(db *sql.DB, key, value string) error {
	query := `
		INSERT INTO entries (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := db.Exec(query, key, value, time.Now().UnixMilli()); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeleteEntry removes key. Returns whether a row existed.
func DeleteEntry(db *sql.DB, key string) (bool, error) {
	result, err := db.Exec(`DELETE FROM entries WHERE key = ?`, key)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return rowsAffected > 0, nil
}

// ListKeys returns all keys starting with prefix, ordered by key.
func ListKeys(db *sql.DB, prefix string) ([]string, error) {
	// substr comparison instead of LIKE: LIKE is case-insensitive and treats _ and % as wildcards
	query := `SELECT key FROM entries WHERE substr(key, 1, length(?)) = ? ORDER BY key`

	rows, err := db.Query(query, prefix, prefix)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.NewInternal(err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return keys, nil
}
