package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/carelink/telehealth-gateway/internal/http/handlers"
	httpmiddleware "github.com/carelink/telehealth-gateway/internal/http/middleware"
	"github.com/carelink/telehealth-gateway/internal/identity"
	"github.com/carelink/telehealth-gateway/internal/platform"
	"github.com/carelink/telehealth-gateway/internal/session"
)

type staticRefresher struct{}

func (staticRefresher) Refresh(_ context.Context, sess *session.Session) (*session.Session, error) {
	return sess, nil
}

func testRouter(t *testing.T) (http.Handler, *session.Store) {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	store := session.NewStore(redisClient, time.Hour)
	manager := session.NewManager(store, staticRefresher{}, time.Second, nil)
	cookies := &session.Cookies{AccessTokenName: "cl-access-token", TTL: time.Hour}
	guard := httpmiddleware.NewGuard(manager, cookies, nil, nil)

	// The identity and platform backends are never reached by these tests.
	idClient := identity.NewClient("http://identity.invalid", "anon", nil)
	source := identity.NewSessionSource(idClient, nil, nil)
	platformClient := platform.NewClient("http://platform.invalid", "key", nil)

	auth := handlers.NewAuthHandler(handlers.AuthHandlerConfig{
		Source:  source,
		Client:  idClient,
		Store:   store,
		Manager: manager,
		Cookies: cookies,
	})
	callback := handlers.NewCallbackHandler(source, store, manager, cookies, nil, nil, nil)

	handler := New(&Config{
		Guard:      guard,
		Cookies:    cookies,
		Verifier:   identity.NewVerifier("api-secret", ""),
		Auth:       auth,
		Callback:   callback,
		Dashboards: handlers.NewDashboardHandler(platformClient, nil),
		Health:     handlers.NewHealthHandler(redisClient, nil),
		Env:        "test",
	})
	return handler, store
}

func seedSession(t *testing.T, store *session.Store, sid string, role session.Role) {
	t.Helper()
	err := store.Save(context.Background(), sid, &session.Session{
		User:        &session.User{ID: "auth-" + string(role), Role: role, FullName: "Test User"},
		AccessToken: "access-" + sid,
		ExpiresAt:   time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

func browserGet(handler http.Handler, path, sid string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Accept", "text/html")
	if sid != "" {
		req.AddCookie(&http.Cookie{Name: "cl-session-id", Value: sid})
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	handler, _ := testRouter(t)
	rec := browserGet(handler, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRobotsExcludesRoleAreas(t *testing.T) {
	handler, _ := testRouter(t)
	rec := browserGet(handler, "/robots.txt", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, prefix := range []string{"/admin/", "/doctor/", "/hospital/", "/pharmacy/", "/consultation/"} {
		if !strings.Contains(body, "Disallow: "+prefix) {
			t.Errorf("robots.txt missing Disallow for %s:\n%s", prefix, body)
		}
	}
}

func TestRootRedirectsByAccessTokenPresence(t *testing.T) {
	handler, _ := testRouter(t)

	rec := browserGet(handler, "/", "")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Errorf("anonymous location = %q, want /login", loc)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "text/html")
	req.AddCookie(&http.Cookie{Name: "cl-access-token", Value: "access"})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/dashboard" {
		t.Errorf("location = %q, want /dashboard", loc)
	}
}

func TestAnonymousBrowserRedirectedToLogin(t *testing.T) {
	handler, _ := testRouter(t)
	rec := browserGet(handler, "/dashboard/api/me", "")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, "/login?redirect=") {
		t.Errorf("location = %q", loc)
	}
}

func TestWrongRoleSentToOwnDashboard(t *testing.T) {
	handler, store := testRouter(t)
	seedSession(t, store, "sid-doc", session.RoleDoctor)

	rec := browserGet(handler, "/admin/api/me", "sid-doc")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/doctor" {
		t.Errorf("location = %q, want /doctor", loc)
	}
}

func TestMatchingRoleAllowed(t *testing.T) {
	handler, store := testRouter(t)
	seedSession(t, store, "sid-doc", session.RoleDoctor)

	rec := browserGet(handler, "/doctor/api/me", "sid-doc")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "/doctor") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestFragmentTokensDivertedToCallback(t *testing.T) {
	handler, _ := testRouter(t)
	rec := browserGet(handler, "/dashboard?access_token=leaked&token_type=bearer", "")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/auth/callback?") || !strings.Contains(loc, "access_token=leaked") {
		t.Errorf("location = %q", loc)
	}
}

func TestBearerAPIIdentityProbe(t *testing.T) {
	handler, _ := testRouter(t)

	claims := jwt.MapClaims{
		"sub":           "auth-9",
		"exp":           time.Now().Add(time.Hour).Unix(),
		"iat":           time.Now().Unix(),
		"user_metadata": map[string]any{"role": "doctor"},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("api-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"role":"doctor"`) {
		t.Errorf("body = %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}
}
