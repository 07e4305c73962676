package draft

import (
	"sort"
	"sync"
)

// Unload broadcasts the "page is going away" signal to subscribed controllers.
// Hosts fire it on process shutdown, on an unload beacon from a browser, or at
// end of input; each subscriber flushes synchronously before Fire returns.
type Unload struct {
	mu       sync.Mutex
	next     int
	handlers map[int]func()
}

// NewUnload creates an empty hub.
func NewUnload() *Unload {
	return &Unload{handlers: make(map[int]func())}
}

// Subscribe registers fn and returns a func that removes it. Cancel is idempotent.
func (u *Unload) Subscribe(fn func()) (cancel func()) {
	u.mu.Lock()
	id := u.next
	u.next++
	u.handlers[id] = fn
	u.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			u.mu.Lock()
			delete(u.handlers, id)
			u.mu.Unlock()
		})
	}
}

// Fire calls every subscriber in subscription order.
func (u *Unload) Fire() {
	u.mu.Lock()
	ids := make([]int, 0, len(u.handlers))
	for id := range u.handlers {
		ids = append(ids, id)
	}
	fns := make([]func(), 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, u.handlers[id])
	}
	u.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Len returns the number of subscribers.
func (u *Unload) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.handlers)
}
