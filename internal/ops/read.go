package ops

import (
	"encoding/json"
	"time"

	"github.com/hpungsan/draftkeep/internal/draft"
	"github.com/hpungsan/draftkeep/internal/errors"
)

// ReadInput contains parameters for the Read operation.
type ReadInput struct {
	Key    string        // required
	MaxAge time.Duration // staleness threshold for the Stale flag; default 24h
}

// ReadOutput contains the result of the Read operation.
type ReadOutput struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	AgeMillis int64           `json:"age_ms"`
	Stale     bool            `json:"stale"`
}

// Read returns the stored draft for key. Stale drafts are returned with
// Stale set rather than deleted; only a controller mount expires them.
// A corrupt envelope is deleted and reported as CORRUPT_ENVELOPE.
func Read(store *draft.Store, input ReadInput) (*ReadOutput, error) {
	key, err := ValidateKey(input.Key)
	if err != nil {
		return nil, err
	}

	env, out := store.Read(key)
	if err := outcomeErr(out); err != nil {
		return nil, err
	}
	if env == nil {
		return nil, errors.NewNotFound(key)
	}

	now := store.Clock().Now()
	return &ReadOutput{
		Key:       key,
		Data:      env.Data,
		Timestamp: env.Timestamp,
		AgeMillis: now.UnixMilli() - env.Timestamp,
		Stale:     isStale(env.Timestamp, now, input.MaxAge),
	}, nil
}
