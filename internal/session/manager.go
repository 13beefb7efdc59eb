package session

import (
	"sync"
	"time"

	"github.com/carelink/telehealth-gateway/pkg/logging"
)

// Manager hands out one shared Context (and its one-shot Initializer) per
// browser session id. Guards mounted concurrently for the same browser all
// observe the same context, so only one validation request is ever in flight
// per session regardless of how many areas are open.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry

	store     Persistence
	refresher Refresher
	timeout   time.Duration
	observe   func(outcome string)
	logger    *logging.Logger

	idleTTL time.Duration
	now     func() time.Time
}

type entry struct {
	ctx      *Context
	init     *Initializer
	lastSeen time.Time
}

// NewManager creates a context registry backed by the given persistence and
// identity refresher.
func NewManager(store Persistence, refresher Refresher, timeout time.Duration, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	m := &Manager{
		entries:   make(map[string]*entry),
		store:     store,
		refresher: refresher,
		timeout:   timeout,
		logger:    logger,
		idleTTL:   time.Hour,
		now:       time.Now,
	}
	go m.evictLoop()
	return m
}

// WithInitObserver records every restore outcome through fn, typically a
// metrics counter. Set it before the first request is served.
func (m *Manager) WithInitObserver(fn func(outcome string)) *Manager {
	m.mu.Lock()
	m.observe = fn
	m.mu.Unlock()
	return m
}

// ContextFor returns the shared context and initializer for a session id.
// An empty id gets an isolated context that initializes to unauthenticated.
func (m *Manager) ContextFor(sid string) (*Context, *Initializer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[sid]
	if !ok {
		ctx := NewContext()
		init := NewInitializer(sid, ctx, m.store, m.refresher, m.timeout, m.logger)
		init.observe = m.observe
		e = &entry{ctx: ctx, init: init}
		m.entries[sid] = e
	}
	e.lastSeen = m.now()
	return e.ctx, e.init
}

// Drop forgets the in-process context for a session id (logout).
func (m *Manager) Drop(sid string) {
	m.mu.Lock()
	delete(m.entries, sid)
	m.mu.Unlock()
}

// evictLoop prevents unbounded growth from abandoned session ids.
func (m *Manager) evictLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := m.now().Add(-m.idleTTL)
		m.mu.Lock()
		for sid, e := range m.entries {
			if e.lastSeen.Before(cutoff) {
				delete(m.entries, sid)
			}
		}
		m.mu.Unlock()
	}
}
