package ops

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/hpungsan/draftkeep/internal/draft"
	"github.com/hpungsan/draftkeep/internal/errors"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// MaxKeyLength bounds draft keys accepted by the admin surfaces.
const MaxKeyLength = 200

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// ValidateKey trims key and rejects values the admin surfaces won't address.
// The store itself takes any key; this only guards CLI, MCP and HTTP input.
func ValidateKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.NewInvalidRequest("key is required")
	}
	if len(key) > MaxKeyLength {
		return "", errors.NewInvalidRequest(fmt.Sprintf("key must be at most %d bytes", MaxKeyLength))
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return "", errors.NewInvalidRequest("key must not contain control characters")
		}
	}
	return key, nil
}

// DraftSummary describes one stored envelope without its payload.
type DraftSummary struct {
	Key        string `json:"key"`
	StorageKey string `json:"storage_key"`
	Bytes      int    `json:"bytes"`
	Timestamp  int64  `json:"timestamp,omitempty"`
	AgeMillis  int64  `json:"age_ms,omitempty"`
	Stale      bool   `json:"stale"`
	Corrupt    bool   `json:"corrupt"`
}

// summarize builds a DraftSummary for e as seen at now.
func summarize(e draft.Entry, now time.Time, maxAge time.Duration) DraftSummary {
	s := DraftSummary{
		Key:        e.Key,
		StorageKey: e.StorageKey,
		Bytes:      e.Size,
		Corrupt:    e.Corrupt,
	}
	if e.Envelope != nil {
		s.Timestamp = e.Envelope.Timestamp
		s.AgeMillis = now.UnixMilli() - e.Envelope.Timestamp
		s.Stale = isStale(e.Envelope.Timestamp, now, maxAge)
	}
	return s
}

// isStale applies the recovery rule: an envelope is offered only while
// now - timestamp < maxAge.
func isStale(timestamp int64, now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = draft.DefaultMaxAge
	}
	return now.UnixMilli()-timestamp >= maxAge.Milliseconds()
}

// outcomeErr turns a failed Outcome into the error admin callers see.
func outcomeErr(out draft.Outcome) error {
	if out.OK() {
		return nil
	}
	return out.Err
}

// validJSON checks that data is one JSON value.
func validJSON(data json.RawMessage) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return errors.NewInvalidRequest("data is required")
	}
	if !json.Valid(data) {
		return errors.NewInvalidRequest("data must be valid JSON")
	}
	return nil
}
