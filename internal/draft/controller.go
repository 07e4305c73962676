package draft

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/hpungsan/draftkeep/internal/errors"
)

// Status is the controller's lifecycle state. It is never persisted.
type Status string

const (
	StatusIdle      Status = "idle"      // nothing saved this session, or just cleared
	StatusSaved     Status = "saved"     // current payload is on the medium
	StatusRecovered Status = "recovered" // a stored draft is on offer and unanswered
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultDebounce = 2 * time.Second
	DefaultMaxAge   = 24 * time.Hour
)

// Options configures a Controller.
type Options struct {
	Key      string          // draft slot; not validated
	Enabled  *bool           // default: true (nil means default)
	MaxAge   time.Duration   // drafts this old or older are discarded at mount
	Debounce time.Duration   // quiet period before a change is written
	Clock    clockwork.Clock // default: the store's clock
	Unload   *Unload         // optional; Flush is subscribed while enabled
	Logger   *zerolog.Logger
}

// Snapshot is a point-in-time view of a controller.
type Snapshot[T any] struct {
	Key           string `json:"key"`
	Status        Status `json:"status"`
	Enabled       bool   `json:"enabled"`
	RecoveredData *T     `json:"recovered_data"`
	RecoveredAt   int64  `json:"recovered_at,omitempty"` // epoch ms of the recovered envelope
}

// Controller drives one draft slot for a host form holding values of type T.
// All methods are safe for concurrent use; debounce callbacks run on timer
// goroutines and take the same lock as host calls.
type Controller[T any] struct {
	store    *Store
	key      string
	maxAge   time.Duration
	debounce time.Duration
	clock    clockwork.Clock
	unload   *Unload
	log      zerolog.Logger

	mu          sync.Mutex
	enabled     bool
	closed      bool
	data        T
	dirty       bool // data changed since the last successful write
	status      Status
	recovered   *T
	recoveredAt int64
	timer       clockwork.Timer
	gen         uint64 // bumped on every cancel; stale timer callbacks compare and bail
	unsubscribe func()
}

// New mounts a controller for opts.Key with the host's current data.
// When enabled it reads the store once: a fresh envelope puts the controller
// in StatusRecovered; a stale or undecodable one is deleted.
// Construction never schedules a write.
func New[T any](store *Store, data T, opts Options) *Controller[T] {
	c := &Controller[T]{
		store:    store,
		key:      opts.Key,
		maxAge:   opts.MaxAge,
		debounce: opts.Debounce,
		clock:    opts.Clock,
		unload:   opts.Unload,
		log:      zerolog.Nop(),
		enabled:  true,
		data:     data,
		status:   StatusIdle,
	}
	if opts.Enabled != nil {
		c.enabled = *opts.Enabled
	}
	if c.maxAge <= 0 {
		c.maxAge = DefaultMaxAge
	}
	if c.debounce <= 0 {
		c.debounce = DefaultDebounce
	}
	if c.clock == nil {
		c.clock = store.Clock()
	}
	if opts.Logger != nil {
		c.log = opts.Logger.With().Str("draft_key", opts.Key).Logger()
	}

	if c.enabled {
		c.mu.Lock()
		c.mount()
		c.subscribe()
		c.mu.Unlock()
	}
	return c
}

// mount performs the one recovery check. Caller holds mu.
func (c *Controller[T]) mount() {
	env, out := c.store.Read(c.key)
	c.discard(out)
	if env == nil {
		return
	}

	age := time.Duration(c.clock.Now().UnixMilli()-env.Timestamp) * time.Millisecond
	if age >= c.maxAge {
		c.log.Debug().Dur("age", age).Msg("discarding stale draft")
		c.discard(c.store.Remove(c.key))
		return
	}

	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		c.discard(Outcome{Op: "read", Key: c.key, Err: errors.NewCorruptEnvelope(c.store.StorageKey(c.key), err)})
		c.discard(c.store.Remove(c.key))
		return
	}

	c.recovered = &v
	c.recoveredAt = env.Timestamp
	c.status = StatusRecovered
	c.log.Debug().Dur("age", age).Msg("draft available for recovery")
}

// Update records a change to the tracked payload and restarts the debounce.
// While a recovery is on offer the debounce is held so the stored draft
// survives until the user answers; the latest data is kept and written once
// the offer is accepted or dismissed.
func (c *Controller[T]) Update(data T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.data = data
	c.dirty = true
	if !c.enabled || c.status == StatusRecovered {
		return
	}
	c.schedule()
}

// Flush writes the current payload immediately, cancelling any pending debounce.
// It is what runs on unload. Without edits since mount or since the last
// ClearDraft there is nothing of the user's to keep, so nothing is written;
// the same holds while a recovery is unanswered and the form is untouched.
func (c *Controller[T]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || !c.enabled {
		return
	}
	if !c.dirty && c.status != StatusSaved {
		return
	}
	c.cancel()
	c.save()
}

// SaveNow bypasses the debounce and writes immediately. It returns the payload
// that was (or, if drafting is off, would have been) written.
func (c *Controller[T]) SaveNow() T {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || !c.enabled {
		return c.data
	}
	c.cancel()
	c.save()
	return c.data
}

// AcceptRecovery takes the recovered payload for the host to merge into its
// form. The stored envelope is left alone; the host clears it after submit.
func (c *Controller[T]) AcceptRecovery() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if c.status != StatusRecovered || c.recovered == nil {
		return zero, false
	}
	v := *c.recovered
	c.endRecovery()
	return v, true
}

// DismissRecovery discards the recovered draft and removes it from the store.
// With no offer open it behaves like ClearDraft.
func (c *Controller[T]) DismissRecovery() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if c.status != StatusRecovered {
		c.clear()
		return
	}
	if c.enabled {
		c.discard(c.store.Remove(c.key))
	}
	c.endRecovery()
}

// ClearDraft removes the stored draft and returns to idle, typically after a
// successful submit. Pending writes are cancelled. Safe to call repeatedly.
func (c *Controller[T]) ClearDraft() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.clear()
}

// clear cancels pending writes, removes the stored draft and returns to idle.
// Caller holds mu.
func (c *Controller[T]) clear() {
	c.cancel()
	if c.enabled {
		c.discard(c.store.Remove(c.key))
	}
	c.recovered = nil
	c.recoveredAt = 0
	c.dirty = false
	c.status = StatusIdle
}

// SetEnabled turns drafting on or off. Off cancels pending writes and stops
// listening for unload. On resumes both but does not repeat the mount-time
// recovery check.
func (c *Controller[T]) SetEnabled(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.enabled == on {
		return
	}
	c.enabled = on
	if !on {
		c.cancel()
		c.unsubscribeUnload()
		return
	}
	c.subscribe()
	if c.dirty && c.status != StatusRecovered {
		c.schedule()
	}
}

// Close unmounts the controller. A pending debounce is dropped, not flushed.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	c.unsubscribeUnload()
}

// Status returns the lifecycle state.
func (c *Controller[T]) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// RecoveredData returns the payload on offer, if any.
func (c *Controller[T]) RecoveredData() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if c.recovered == nil {
		return zero, false
	}
	return *c.recovered, true
}

// RecoveredAt returns when the offered draft was saved.
func (c *Controller[T]) RecoveredAt() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recovered == nil {
		return time.Time{}, false
	}
	return time.UnixMilli(c.recoveredAt), true
}

// Data returns the most recent payload passed to New or Update.
func (c *Controller[T]) Data() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

// Key returns the draft key.
func (c *Controller[T]) Key() string { return c.key }

// Snapshot returns the current state in one locked read.
func (c *Controller[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot[T]{
		Key:     c.key,
		Status:  c.status,
		Enabled: c.enabled,
	}
	if c.recovered != nil {
		v := *c.recovered
		s.RecoveredData = &v
		s.RecoveredAt = c.recoveredAt
	}
	return s
}

// endRecovery leaves StatusRecovered and releases any edits held back while
// the offer was open. Caller holds mu.
func (c *Controller[T]) endRecovery() {
	c.recovered = nil
	c.recoveredAt = 0
	if c.status == StatusRecovered {
		c.status = StatusIdle
	}
	if c.dirty && c.enabled && !c.closed {
		c.schedule()
	}
}

// save writes the current payload. A failed write leaves status untouched.
// Caller holds mu.
func (c *Controller[T]) save() {
	out := c.store.Write(c.key, c.data)
	c.discard(out)
	if !out.OK() {
		return
	}
	c.dirty = false
	c.recovered = nil
	c.recoveredAt = 0
	c.status = StatusSaved
}

// schedule (re)starts the debounce timer. Caller holds mu.
func (c *Controller[T]) schedule() {
	c.cancel()
	gen := c.gen
	c.timer = c.clock.AfterFunc(c.debounce, func() { c.fire(gen) })
}

// cancel stops any pending debounce. Caller holds mu.
func (c *Controller[T]) cancel() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

func (c *Controller[T]) fire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A callback that lost the race with cancel sees a newer generation.
	if gen != c.gen || c.closed || !c.enabled {
		return
	}
	c.timer = nil
	c.save()
}

// subscribe registers Flush with the unload hub. Caller holds mu.
func (c *Controller[T]) subscribe() {
	if c.unload == nil || c.unsubscribe != nil {
		return
	}
	c.unsubscribe = c.unload.Subscribe(c.Flush)
}

// unsubscribeUnload removes the unload subscription. Caller holds mu.
func (c *Controller[T]) unsubscribeUnload() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// discard drops a storage outcome. Failures are logged at debug and go no further.
func (c *Controller[T]) discard(out Outcome) {
	if out.OK() {
		return
	}
	c.log.Debug().Str("op", out.Op).Err(out.Err).Msg("draft storage interaction failed")
}
