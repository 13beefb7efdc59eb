package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/carelink/telehealth-gateway/pkg/logging"
)

// Persistence is the durable storage the initializer restores from.
type Persistence interface {
	Load(ctx context.Context, sid string) (*Session, error)
	Save(ctx context.Context, sid string, sess *Session) error
	Delete(ctx context.Context, sid string) error
}

// Refresher validates or renews a restored session against the identity
// backend, returning the refreshed session (including its user).
type Refresher interface {
	Refresh(ctx context.Context, sess *Session) (*Session, error)
}

// Initializer establishes a valid session from persisted credentials without
// user interaction. It runs at most once per session context; every failure
// path clears the session and still marks the context initialized, so
// consumers treat "initialized but unauthenticated" as terminal and never
// retry automatically.
type Initializer struct {
	runOnce sync.Once

	sid       string
	sessCtx   *Context
	store     Persistence
	refresher Refresher
	timeout   time.Duration
	observe   func(outcome string)
	logger    *logging.Logger
}

// NewInitializer builds an initializer for one browser session.
// timeout bounds the whole restore attempt; a stalled identity backend
// resolves to unauthenticated rather than leaving guards pending forever.
func NewInitializer(sid string, sessCtx *Context, store Persistence, refresher Refresher, timeout time.Duration, logger *logging.Logger) *Initializer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Initializer{
		sid:       sid,
		sessCtx:   sessCtx,
		store:     store,
		refresher: refresher,
		timeout:   timeout,
		logger:    logger,
	}
}

// Run starts the restore attempt exactly once; later calls are no-ops. It
// returns without waiting: callers observe the outcome through the session
// context's subscription. The restore runs on its own goroutine with a
// detached, timeout-bounded context, so one request disconnecting never
// cancels the restore that every tab of the browser session shares.
func (i *Initializer) Run(ctx context.Context) {
	i.runOnce.Do(func() {
		bounded, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.timeout)
		go func() {
			defer cancel()
			i.restore(bounded)
		}()
	})
}

func (i *Initializer) restore(ctx context.Context) {
	if i.sid == "" {
		i.report("anonymous")
		i.sessCtx.Clear()
		return
	}

	sess, err := i.store.Load(ctx, i.sid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			i.report("not_found")
		} else {
			i.logger.Warn("session restore failed", "error", err, "session_id", i.sid)
			i.report("store_error")
		}
		i.sessCtx.Clear()
		return
	}

	refreshed, err := i.refresher.Refresh(ctx, sess)
	if err != nil {
		i.logger.Info("session refresh failed, treating as unauthenticated",
			"error", err, "session_id", i.sid)
		if delErr := i.store.Delete(context.WithoutCancel(ctx), i.sid); delErr != nil {
			i.logger.Warn("failed to drop stale session", "error", delErr, "session_id", i.sid)
		}
		i.report("refresh_failed")
		i.sessCtx.Clear()
		return
	}

	if err := i.store.Save(ctx, i.sid, refreshed); err != nil {
		i.logger.Warn("failed to persist refreshed session", "error", err, "session_id", i.sid)
	}
	i.report("restored")
	i.sessCtx.SetSession(refreshed)
}

func (i *Initializer) report(outcome string) {
	if i.observe != nil {
		i.observe(outcome)
	}
}
