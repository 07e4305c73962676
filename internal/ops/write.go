package ops

import (
	"encoding/json"

	"github.com/hpungsan/draftkeep/internal/draft"
)

// WriteInput contains parameters for the Write operation.
type WriteInput struct {
	Key  string          // required
	Data json.RawMessage // required, any JSON value
}

// WriteOutput contains the result of the Write operation.
type WriteOutput struct {
	Key        string `json:"key"`
	StorageKey string `json:"storage_key"`
	Timestamp  int64  `json:"timestamp"`
}

// Write stores data as the draft for key, replacing any existing envelope.
// Unlike the controller, failures are returned to the caller.
func Write(store *draft.Store, input WriteInput) (*WriteOutput, error) {
	key, err := ValidateKey(input.Key)
	if err != nil {
		return nil, err
	}
	if err := validJSON(input.Data); err != nil {
		return nil, err
	}

	env := draft.Envelope{Data: input.Data, Timestamp: store.Clock().Now().UnixMilli()}
	if err := outcomeErr(store.Put(key, env)); err != nil {
		return nil, err
	}

	return &WriteOutput{
		Key:        key,
		StorageKey: store.StorageKey(key),
		Timestamp:  env.Timestamp,
	}, nil
}
