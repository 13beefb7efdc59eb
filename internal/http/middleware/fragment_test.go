package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func passThrough(t *testing.T, called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestFragmentDetectorRedirectsTokenLanding(t *testing.T) {
	var called bool
	handler := FragmentTokenDetector(passThrough(t, &called))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/dashboard?access_token=at&refresh_token=rt&type=recovery", nil))

	if called {
		t.Error("handler must not run when tokens landed on the wrong page")
	}
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	want := "/auth/callback?access_token=at&refresh_token=rt&type=recovery"
	if loc := rec.Header().Get("Location"); loc != want {
		t.Errorf("location = %q, want %q", loc, want)
	}
}

func TestFragmentDetectorNoOpOnCallbackPath(t *testing.T) {
	var called bool
	handler := FragmentTokenDetector(passThrough(t, &called))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/auth/callback?access_token=at", nil))

	if !called || rec.Code != http.StatusOK {
		t.Error("callback route must process tokens itself, no second redirect")
	}
}

func TestFragmentDetectorPassesCleanRequests(t *testing.T) {
	var called bool
	handler := FragmentTokenDetector(passThrough(t, &called))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/dashboard", nil))

	if !called || rec.Code != http.StatusOK {
		t.Error("plain requests must pass through untouched")
	}
}

func TestFragmentDetectorIgnoresLookalikeParams(t *testing.T) {
	var called bool
	handler := FragmentTokenDetector(passThrough(t, &called))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/docs?next=access_token_rotation", nil))

	if !called {
		t.Error("a token-like substring in another parameter must not trigger a redirect")
	}
}
