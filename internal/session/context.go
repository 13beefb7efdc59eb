package session

import (
	"sync"
	"time"
)

// Snapshot is an immutable view of session state at a point in time.
// Consumers never see partial writes: every read goes through a snapshot.
type Snapshot struct {
	Initialized bool
	Session     *Session
}

// Authenticated reports whether the snapshot holds a valid session.
func (s Snapshot) Authenticated(now time.Time) bool {
	return s.Session.Valid(now)
}

// Context is the single source of truth for one browser session's auth state.
// It is an explicit, injectable object rather than ambient global state:
// tests construct isolated instances, and guards share one instance per
// browser session so they all observe the same initialization signal.
//
// Writes come from one logical writer at a time (the initializer, or an
// explicit login/logout action); concurrent reads are safe.
type Context struct {
	mu          sync.RWMutex
	initialized bool
	session     *Session

	subs    map[int]chan Snapshot
	nextSub int

	now func() time.Time
}

// NewContext creates an empty, uninitialized session context.
func NewContext() *Context {
	return &Context{
		subs: make(map[int]chan Snapshot),
		now:  time.Now,
	}
}

// Snapshot returns the current state.
func (c *Context) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{Initialized: c.initialized, Session: c.session}
}

// GetUser returns the current user, or nil when unauthenticated.
func (c *Context) GetUser() *User {
	snap := c.Snapshot()
	if !snap.Authenticated(c.now()) {
		return nil
	}
	return snap.Session.User
}

// IsAuthenticated is true iff a non-expired session with a user is held.
func (c *Context) IsAuthenticated() bool {
	return c.Snapshot().Authenticated(c.now())
}

// IsInitialized is true once the initializer has completed, success or failure.
func (c *Context) IsInitialized() bool {
	return c.Snapshot().Initialized
}

// SetSession overwrites the current session and marks the context initialized.
func (c *Context) SetSession(s *Session) {
	c.mu.Lock()
	c.session = s
	c.initialized = true
	snap := Snapshot{Initialized: true, Session: s}
	c.mu.Unlock()
	c.notify(snap)
}

// Clear removes the session (logout, or refresh failure) and marks the
// context initialized: "initialized but unauthenticated" is a valid terminal
// state that consumers must never retry out of automatically.
func (c *Context) Clear() {
	c.SetSession(nil)
}

// Subscribe registers for state-change notifications. The current snapshot is
// delivered immediately so a subscriber can never miss an initialization that
// completed before it subscribed. Later snapshots are coalesced: a slow
// consumer sees the latest state, not every intermediate one.
// The returned cancel func must be called to release the subscription.
func (c *Context) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	// The fresh 1-slot buffer cannot be full, and holding the lock keeps a
	// concurrent notify from landing between registration and this send.
	ch <- Snapshot{Initialized: c.initialized, Session: c.session}
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
	return ch, cancel
}

func (c *Context) notify(snap Snapshot) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.subs {
		// Coalesce: drop a stale pending snapshot before pushing the new one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
