package ops

import (
	"fmt"
	"time"

	"github.com/hpungsan/draftkeep/internal/draft"
)

// PurgeInput contains parameters for the Purge operation.
type PurgeInput struct {
	MaxAge         time.Duration // drafts this old or older are purged; default 24h
	IncludeCorrupt bool          // also purge envelopes that fail to parse
}

// PurgeOutput contains the result of the Purge operation.
type PurgeOutput struct {
	Purged  int    `json:"purged"`
	Stale   int    `json:"stale"`
	Corrupt int    `json:"corrupt"`
	Message string `json:"message"`
}

// Purge deletes envelopes that would never be offered for recovery again.
func Purge(store *draft.Store, input PurgeInput) (*PurgeOutput, error) {
	entries, err := store.List()
	if err != nil {
		return nil, err
	}

	now := store.Clock().Now()
	var stale, corrupt int
	for _, e := range entries {
		switch {
		case e.Corrupt && input.IncludeCorrupt:
			corrupt++
		case e.Envelope != nil && isStale(e.Envelope.Timestamp, now, input.MaxAge):
			stale++
		default:
			continue
		}
		if err := outcomeErr(store.Remove(e.Key)); err != nil {
			return nil, err
		}
	}

	maxAge := input.MaxAge
	if maxAge <= 0 {
		maxAge = draft.DefaultMaxAge
	}

	return &PurgeOutput{
		Purged:  stale + corrupt,
		Stale:   stale,
		Corrupt: corrupt,
		Message: formatPurgeMessage(stale, corrupt, maxAge),
	}, nil
}

// formatPurgeMessage creates a human-readable message for the purge result.
func formatPurgeMessage(stale, corrupt int, maxAge time.Duration) string {
	count := stale + corrupt
	if count == 0 {
		return "No stale drafts to purge"
	}

	draftWord := "draft"
	if count > 1 {
		draftWord = "drafts"
	}

	msg := fmt.Sprintf("Permanently deleted %d %s", count, draftWord)

	if stale > 0 {
		msg += fmt.Sprintf(" (%d older than %s", stale, maxAge)
		if corrupt > 0 {
			msg += fmt.Sprintf(", %d corrupt", corrupt)
		}
		msg += ")"
	} else {
		msg += " (corrupt)"
	}

	return msg
}
