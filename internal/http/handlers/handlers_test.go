package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/carelink/telehealth-gateway/internal/identity"
	"github.com/carelink/telehealth-gateway/internal/observability/metrics"
	"github.com/carelink/telehealth-gateway/internal/session"
)

// identityBackend is a stub GoTrue-style server. Accounts are keyed by the
// credential that unlocks them; the value is the role placed in user
// metadata.
func identityBackend(t *testing.T) *httptest.Server {
	t.Helper()

	roles := map[string]string{
		"good-code":   "admin",
		"doctor-code": "doctor",
		"secret":      "patient",
		"123456":      "doctor",
	}

	mux := http.NewServeMux()
	issue := func(w http.ResponseWriter, role string) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-" + role,
			"refresh_token": "refresh-" + role,
			"expires_in":    3600,
			"user": map[string]any{
				"id":            "auth-" + role,
				"email":         role + "@example.com",
				"user_metadata": map[string]any{"role": role, "full_name": "Test " + role},
			},
		})
	}
	reject := func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"msg": "invalid grant"})
	}

	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		var cred string
		switch r.URL.Query().Get("grant_type") {
		case "authorization_code":
			cred = body["code"]
		case "password":
			cred = body["password"]
		case "refresh_token":
			cred = body["refresh_token"]
		}
		role, ok := roles[cred]
		if !ok {
			reject(w)
			return
		}
		issue(w, role)
	})
	mux.HandleFunc("/auth/v1/otp", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] == "unknown@example.com" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"msg": "user not found"})
			return
		}
		w.Write([]byte("{}"))
	})
	mux.HandleFunc("/auth/v1/verify", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		code, _ := body["token"].(string)
		role, ok := roles[code]
		if !ok {
			reject(w)
			return
		}
		issue(w, role)
	})
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type fixture struct {
	auth     *AuthHandler
	callback *CallbackHandler
	store    *session.Store
	manager  *session.Manager
	cookies  *session.Cookies
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	backend := identityBackend(t)
	client := identity.NewClient(backend.URL, "anon-key", nil)
	source := identity.NewSessionSource(client, nil, nil)

	store := session.NewStore(redisClient, time.Hour)
	manager := session.NewManager(store, source, 2*time.Second, nil)
	cookies := &session.Cookies{AccessTokenName: "cl-access-token", TTL: time.Hour}
	authMetrics := metrics.NewAuthMetrics(prometheus.NewRegistry())

	return &fixture{
		auth: NewAuthHandler(AuthHandlerConfig{
			Source:  source,
			Client:  client,
			Store:   store,
			Manager: manager,
			Cookies: cookies,
			Metrics: authMetrics,
		}),
		callback: NewCallbackHandler(source, store, manager, cookies, nil, authMetrics, nil),
		store:    store,
		manager:  manager,
		cookies:  cookies,
	}
}

func sessionIDFromCookies(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "cl-session-id" && ck.Value != "" {
			return ck.Value
		}
	}
	t.Fatal("no session id cookie set")
	return ""
}
