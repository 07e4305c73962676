package ops

import (
	"time"

	"github.com/hpungsan/draftkeep/internal/draft"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Limit  int           // default: 20, max: 100
	Offset int           // default: 0
	MaxAge time.Duration // staleness threshold for the Stale flag; default 24h
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []DraftSummary `json:"items"`
	Pagination Pagination     `json:"pagination"`
	Sort       string         `json:"sort"`
}

// List retrieves draft summaries with pagination, ordered by key.
func List(store *draft.Store, input ListInput) (*ListOutput, error) {
	// Apply limit defaults and bounds
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	// Ensure offset is non-negative
	offset := max(input.Offset, 0)

	entries, err := store.List()
	if err != nil {
		return nil, err
	}
	total := len(entries)

	now := store.Clock().Now()
	items := []DraftSummary{}
	for i := offset; i < total && len(items) < limit; i++ {
		items = append(items, summarize(entries[i], now, input.MaxAge))
	}

	return &ListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "key_asc",
	}, nil
}
