// Package draft persists in-progress form data and decides when to offer it back.
//
// Store owns the on-medium envelope for each draft key. Controller is the
// lifecycle state machine a host form drives: it debounces writes, flushes on
// unload, and surfaces a not-too-old envelope for recovery at construction.
// Neither ever returns a storage failure to the host; failures become
// Outcome values that the controller discards, so a broken medium means
// drafting silently does nothing while the form keeps working.
package draft

import (
	"encoding/json"
	stderrors "errors"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/hpungsan/draftkeep/internal/errors"
	"github.com/hpungsan/draftkeep/internal/storage"
)

// DefaultPrefix is the fixed literal namespacing every storage key.
const DefaultPrefix = "draft"

// Envelope is the stored unit: the payload plus when it was written.
type Envelope struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"` // epoch milliseconds
}

// Entry is one envelope found while listing a store.
type Entry struct {
	Key        string    // caller key, prefix stripped
	StorageKey string    // key on the medium
	Size       int       // serialized bytes
	Envelope   *Envelope // nil when Corrupt
	Corrupt    bool
}

// Outcome reports what happened to one storage interaction.
// It is a value, not an error: callers decide explicitly whether to look at it.
type Outcome struct {
	Op  string // "write", "read", "remove"
	Key string
	Err error
}

// OK reports whether the interaction succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// StoreOptions configures a Store. Zero values pick defaults.
type StoreOptions struct {
	Prefix           string
	Clock            clockwork.Clock
	MaxEnvelopeBytes int // 0 = unlimited
	Logger           *zerolog.Logger
}

// Store reads and writes envelopes on a storage medium.
type Store struct {
	medium   storage.Storage
	prefix   string
	clock    clockwork.Clock
	maxBytes int
	log      zerolog.Logger
}

// NewStore creates a Store over medium.
func NewStore(medium storage.Storage, opts StoreOptions) *Store {
	s := &Store{
		medium:   medium,
		prefix:   opts.Prefix,
		clock:    opts.Clock,
		maxBytes: opts.MaxEnvelopeBytes,
		log:      zerolog.Nop(),
	}
	if s.prefix == "" {
		s.prefix = DefaultPrefix
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if opts.Logger != nil {
		s.log = *opts.Logger
	}
	return s
}

// Prefix returns the namespace prefix.
func (s *Store) Prefix() string { return s.prefix }

// Clock returns the clock used for timestamps.
func (s *Store) Clock() clockwork.Clock { return s.clock }

// StorageKey returns the namespaced medium key for key.
func (s *Store) StorageKey(key string) string {
	return s.prefix + "-" + key
}

// Write serializes {data: payload, timestamp: now} and replaces whatever is
// stored under key. Failures are reported, never retried.
func (s *Store) Write(key string, payload any) Outcome {
	out := Outcome{Op: "write", Key: key}

	data, err := json.Marshal(payload)
	if err != nil {
		out.Err = errors.NewInvalidRequest("payload is not serializable: " + err.Error())
		return out
	}
	return s.Put(key, Envelope{Data: data, Timestamp: s.clock.Now().UnixMilli()})
}

// Put stores env as is, keeping its timestamp. Used when restoring envelopes
// written elsewhere.
func (s *Store) Put(key string, env Envelope) Outcome {
	out := Outcome{Op: "write", Key: key}

	if len(env.Data) == 0 || !json.Valid(env.Data) {
		out.Err = errors.NewInvalidRequest("envelope data is not valid JSON")
		return out
	}
	raw, err := json.Marshal(env)
	if err != nil {
		out.Err = errors.NewInternal(err)
		return out
	}
	if s.maxBytes > 0 && len(raw) > s.maxBytes {
		out.Err = errors.NewQuotaExceeded(s.maxBytes, len(raw))
		return out
	}

	out.Err = s.call(func() error { return s.medium.Set(s.StorageKey(key), string(raw)) })
	return out
}

// Read returns the envelope under key, or nil if it is missing or corrupt.
// A corrupt entry is deleted so it doesn't fail to parse again next time.
func (s *Store) Read(key string) (*Envelope, Outcome) {
	env, out := s.Peek(key)
	if errors.Is(out.Err, errors.ErrCorruptEnvelope) {
		storageKey := s.StorageKey(key)
		_ = s.call(func() error { return s.medium.Delete(storageKey) })
	}
	return env, out
}

// Peek is Read without side effects: a corrupt entry is reported and left in place.
func (s *Store) Peek(key string) (*Envelope, Outcome) {
	out := Outcome{Op: "read", Key: key}
	storageKey := s.StorageKey(key)

	var (
		raw     string
		present bool
	)
	out.Err = s.call(func() error {
		var err error
		raw, present, err = s.medium.Get(storageKey)
		return err
	})
	if out.Err != nil || !present {
		return nil, out
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		out.Err = errors.NewCorruptEnvelope(storageKey, err)
		return nil, out
	}
	return env, out
}

// Remove deletes the envelope under key. Removing a missing key succeeds.
func (s *Store) Remove(key string) Outcome {
	return Outcome{
		Op:  "remove",
		Key: key,
		Err: s.call(func() error { return s.medium.Delete(s.StorageKey(key)) }),
	}
}

// List returns every entry under the prefix, corrupt ones flagged rather than deleted.
func (s *Store) List() ([]Entry, error) {
	lister, ok := s.medium.(storage.Lister)
	if !ok {
		return nil, errors.NewStorageUnavailable("medium cannot list keys")
	}

	keys, err := lister.Keys(s.prefix + "-")
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		raw, present, err := s.medium.Get(k)
		if err != nil {
			return nil, err
		}
		if !present {
			continue
		}
		e := Entry{
			Key:        k[len(s.prefix)+1:],
			StorageKey: k,
			Size:       len(raw),
		}
		if env, err := decodeEnvelope(raw); err != nil {
			e.Corrupt = true
		} else {
			e.Envelope = env
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// call runs fn and turns a panic from the medium into an error.
func (s *Store) call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn().Interface("panic", r).Msg("storage medium panicked")
			err = errors.NewStorageUnavailable("medium panicked")
		}
	}()
	return fn()
}

func decodeEnvelope(raw string) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, err
	}
	if len(env.Data) == 0 {
		return nil, stderrors.New("envelope has no data")
	}
	return &env, nil
}
