package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/carelink/telehealth-gateway/internal/observability/metrics"
	"github.com/carelink/telehealth-gateway/internal/session"
)

type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: make(map[string]*session.Session)}
}

func (s *memoryStore) Load(_ context.Context, sid string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sid]
	if !ok {
		return nil, session.ErrNotFound
	}
	return sess, nil
}

func (s *memoryStore) Save(_ context.Context, sid string, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sid] = sess
	return nil
}

func (s *memoryStore) Delete(_ context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sid)
	return nil
}

type countingRefresher struct {
	calls atomic.Int64
}

func (r *countingRefresher) Refresh(_ context.Context, sess *session.Session) (*session.Session, error) {
	r.calls.Add(1)
	return sess, nil
}

func guardFixture(t *testing.T, role session.Role) (*Guard, *countingRefresher, string) {
	t.Helper()
	store := newMemoryStore()
	sid := "sid-test"
	store.sessions[sid] = &session.Session{
		User: &session.User{
			ID:   "auth-1",
			Role: role,
		},
		AccessToken: "at",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	refresher := &countingRefresher{}
	manager := session.NewManager(store, refresher, time.Second, nil)
	cookies := &session.Cookies{AccessTokenName: "sb-access-token", TTL: time.Hour}
	return NewGuard(manager, cookies, nil, nil), refresher, sid
}

func withSessionCookie(req *http.Request, sid string) *http.Request {
	req.AddCookie(&http.Cookie{Name: "cl-session-id", Value: sid})
	return req
}

func okHandler(t *testing.T, wantUser bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); ok != wantUser {
			t.Errorf("user in context = %v, want %v", ok, wantUser)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestGuardRedirectsAnonymousBrowserToLogin(t *testing.T) {
	guard, _, _ := guardFixture(t, session.RolePatient)
	handler := guard.Protect(session.RolePatient)(okHandler(t, true))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/dashboard", nil))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/login") {
		t.Errorf("location = %q, want a login redirect", loc)
	}
	if !strings.Contains(loc, "redirect=/dashboard") {
		t.Errorf("location = %q, should carry the original path", loc)
	}
}

func TestGuardReturnsJSONForAPIClients(t *testing.T) {
	guard, _, _ := guardFixture(t, session.RolePatient)
	handler := guard.Protect(session.RolePatient)(okHandler(t, true))

	req := httptest.NewRequest("GET", "/dashboard/appointments", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
}

func TestGuardAllowsMatchingRole(t *testing.T) {
	guard, _, sid := guardFixture(t, session.RolePatient)
	handler := guard.Protect(session.RolePatient)(okHandler(t, true))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withSessionCookie(httptest.NewRequest("GET", "/dashboard", nil), sid))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestGuardSendsWrongRoleToOwnDashboard(t *testing.T) {
	guard, _, sid := guardFixture(t, session.RoleDoctor)
	handler := guard.Protect(session.RolePatient)(okHandler(t, true))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withSessionCookie(httptest.NewRequest("GET", "/dashboard", nil), sid))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/doctor" {
		t.Errorf("location = %q, want the doctor dashboard, never login", loc)
	}
}

func TestGuardValidatesSessionOnce(t *testing.T) {
	guard, refresher, sid := guardFixture(t, session.RolePatient)
	handler := guard.Protect(session.RolePatient)(okHandler(t, true))

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, withSessionCookie(httptest.NewRequest("GET", "/dashboard", nil), sid))
		}()
	}
	wg.Wait()

	if got := refresher.calls.Load(); got != 1 {
		t.Errorf("refresher ran %d times for one browser session, want 1", got)
	}
}

func TestAttachExposesUserWithoutEnforcing(t *testing.T) {
	guard, _, sid := guardFixture(t, session.RoleDoctor)

	rec := httptest.NewRecorder()
	guard.Attach(okHandler(t, true)).ServeHTTP(rec, withSessionCookie(httptest.NewRequest("GET", "/", nil), sid))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	guard.Attach(okHandler(t, false)).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous status = %d, want 200 (no enforcement)", rec.Code)
	}
}

func TestGuardExpiredSessionRedirects(t *testing.T) {
	store := newMemoryStore()
	store.sessions["sid-old"] = &session.Session{
		User:        &session.User{ID: "auth-1", Role: session.RolePatient},
		AccessToken: "at",
		ExpiresAt:   time.Now().Add(-time.Hour),
	}
	// Refresher fails, so restore clears the session.
	manager := session.NewManager(store, refresherFunc(func(ctx context.Context, s *session.Session) (*session.Session, error) {
		return nil, context.DeadlineExceeded
	}), time.Second, nil)
	cookies := &session.Cookies{AccessTokenName: "sb-access-token", TTL: time.Hour}
	guard := NewGuard(manager, cookies, nil, nil)

	rec := httptest.NewRecorder()
	handler := guard.Protect(session.RolePatient)(okHandler(t, true))
	handler.ServeHTTP(rec, withSessionCookie(httptest.NewRequest("GET", "/dashboard", nil), "sid-old"))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
}

func TestGuardHoldsForStalledRestoreAndAbandonsOnDisconnect(t *testing.T) {
	store := newMemoryStore()
	store.sessions["sid-slow"] = &session.Session{
		User:        &session.User{ID: "auth-1", Role: session.RolePatient},
		AccessToken: "at",
		ExpiresAt:   time.Now().Add(time.Hour),
	}

	// The refresher stalls until released, so the restore stays in flight
	// for the whole request.
	release := make(chan struct{})
	manager := session.NewManager(store, refresherFunc(func(ctx context.Context, sess *session.Session) (*session.Session, error) {
		select {
		case <-release:
			return sess, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}), 30*time.Second, nil)
	t.Cleanup(func() { close(release) })

	reg := prometheus.NewRegistry()
	cookies := &session.Cookies{AccessTokenName: "sb-access-token", TTL: time.Hour}
	guard := NewGuard(manager, cookies, metrics.NewAuthMetrics(reg), nil)

	var served atomic.Bool
	handler := guard.Protect(session.RolePatient)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served.Store(true)
		w.WriteHeader(http.StatusOK)
	}))

	reqCtx, cancelReq := context.WithCancel(context.Background())
	defer cancelReq()
	req := withSessionCookie(httptest.NewRequest("GET", "/dashboard", nil), "sid-slow").WithContext(reqCtx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.ServeHTTP(rec, req)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("request resolved before the restore settled")
	case <-time.After(100 * time.Millisecond):
	}
	if served.Load() {
		t.Fatal("protected handler ran while the session was still pending")
	}

	// The client disconnects; the request resolves, the shared restore does not.
	cancelReq()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnected request never resolved")
	}

	if served.Load() {
		t.Error("protected handler must not run for a disconnected request")
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if got := guardDecisionCount(t, reg, "abandoned"); got != 1 {
		t.Errorf("abandoned decisions = %v, want 1", got)
	}
}

func guardDecisionCount(t *testing.T, reg *prometheus.Registry, decision string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != "carelink_auth_guard_decisions_total" {
			continue
		}
		for _, m := range fam.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "decision" && label.GetValue() == decision {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

type refresherFunc func(ctx context.Context, sess *session.Session) (*session.Session, error)

func (f refresherFunc) Refresh(ctx context.Context, sess *session.Session) (*session.Session, error) {
	return f(ctx, sess)
}
