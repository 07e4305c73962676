package ops

import (
	"github.com/hpungsan/draftkeep/internal/draft"
	"github.com/hpungsan/draftkeep/internal/errors"
)

// RemoveInput contains parameters for the Remove operation.
type RemoveInput struct {
	Key string // required
}

// RemoveOutput contains the result of the Remove operation.
type RemoveOutput struct {
	Key     string `json:"key"`
	Removed bool   `json:"removed"` // false when there was nothing to remove
}

// Remove deletes the draft for key. Removing a missing draft succeeds.
func Remove(store *draft.Store, input RemoveInput) (*RemoveOutput, error) {
	key, err := ValidateKey(input.Key)
	if err != nil {
		return nil, err
	}

	// A corrupt envelope is deleted by the read itself.
	env, out := store.Read(key)
	existed := env != nil || errors.Is(out.Err, errors.ErrCorruptEnvelope)
	if out.Err != nil && !errors.Is(out.Err, errors.ErrCorruptEnvelope) {
		return nil, out.Err
	}

	if env != nil {
		if err := outcomeErr(store.Remove(key)); err != nil {
			return nil, err
		}
	}

	return &RemoveOutput{Key: key, Removed: existed}, nil
}
