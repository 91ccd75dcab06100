package psdk

import (
	"log/slog"
	"sync"
)

type subscriber struct {
	id int
	fn func(Snapshot)
}

// State is the observable half of the session. UI layers subscribe to it
// and re-render when the authentication status changes.
//
// Observers run one at a time, in mutation order, and never while a session
// lock is held, so an observer may call back into the Client (for example to
// log out or to fetch the profile).
type State struct {
	mu       sync.Mutex
	snap     Snapshot
	pending  []Snapshot
	flushing bool
	subs     []subscriber
	nextID   int
	logger   *slog.Logger
}

func newState(logger *slog.Logger) *State {
	return &State{logger: logger}
}

func (st *State) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snap
}

// Subscribe registers fn and returns a function that removes it.
func (st *State) Subscribe(fn func(Snapshot)) (cancel func()) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.nextID++
	id := st.nextID
	st.subs = append(st.subs, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			st.mu.Lock()
			defer st.mu.Unlock()
			for i, s := range st.subs {
				if s.id == id {
					st.subs = append(st.subs[:i:i], st.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// update applies fn to the current snapshot and queues the result for
// delivery. It reports whether anything changed. Callers flush after
// releasing their own locks.
func (st *State) update(fn func(*Snapshot)) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	next := st.snap
	fn(&next)
	if sameSnapshot(next, st.snap) {
		return false
	}
	st.snap = next
	st.pending = append(st.pending, next)
	return true
}

func sameSnapshot(a, b Snapshot) bool {
	return a.Status == b.Status && a.AccessToken == b.AccessToken && a.Profile == b.Profile
}

// flush delivers queued snapshots. If another goroutine is already
// delivering, it picks up our snapshots too and we return immediately.
func (st *State) flush() {
	st.mu.Lock()
	if st.flushing {
		st.mu.Unlock()
		return
	}
	st.flushing = true
	for len(st.pending) > 0 {
		snap := st.pending[0]
		st.pending = st.pending[1:]
		subs := append([]subscriber(nil), st.subs...)
		st.mu.Unlock()
		for _, s := range subs {
			st.deliver(s.fn, snap)
		}
		st.mu.Lock()
	}
	st.flushing = false
	st.mu.Unlock()
}

func (st *State) deliver(fn func(Snapshot), snap Snapshot) {
	defer func() {
		if r := recover(); r != nil && st.logger != nil {
			st.logger.Error("session observer panicked", "panic", r)
		}
	}()
	fn(snap)
}
