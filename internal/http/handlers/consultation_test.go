package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/carelink/telehealth-gateway/internal/platform"
	"github.com/carelink/telehealth-gateway/internal/session"
	"github.com/carelink/telehealth-gateway/internal/video"
)

func consultationFixture(t *testing.T) http.Handler {
	t.Helper()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/appointments/appt-1":
			json.NewEncoder(w).Encode(platform.Appointment{
				ID: "appt-1", PatientID: "auth-pat", DoctorID: "doc-7", Status: "confirmed",
			})
		case "/v1/rooms":
			json.NewEncoder(w).Encode(video.Room{ID: "room-1", URL: "https://video.example/room-1"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(backend.Close)

	h := NewConsultationHandler(
		platform.NewClient(backend.URL, "platform-key", nil),
		video.NewService(backend.URL, "video-key", nil),
		nil,
	)

	r := chi.NewRouter()
	r.Get("/consultation/{appointmentID}/join", h.Join)
	return r
}

func joinAs(t *testing.T, router http.Handler, user *session.User) *httptest.ResponseRecorder {
	t.Helper()
	req := authedRequest("/consultation/appt-1/join", user)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestConsultationPatientJoinsAsGuest(t *testing.T) {
	router := consultationFixture(t)

	rec := joinAs(t, router, &session.User{ID: "auth-pat", Role: session.RolePatient})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["is_host"] != false {
		t.Errorf("patient joined as host: %v", resp)
	}
	if resp["token"] == "" || resp["room_url"] != "https://video.example/room-1" {
		t.Errorf("join payload = %v", resp)
	}
}

func TestConsultationDoctorJoinsAsHost(t *testing.T) {
	router := consultationFixture(t)

	rec := joinAs(t, router, &session.User{ID: "auth-doc", DoctorID: "doc-7", Role: session.RoleDoctor})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp map[string]any
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["is_host"] != true {
		t.Errorf("doctor did not join as host: %v", resp)
	}
}

func TestConsultationRejectsStrangers(t *testing.T) {
	router := consultationFixture(t)

	rec := joinAs(t, router, &session.User{ID: "auth-other", Role: session.RolePatient})
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestConsultationRequiresAuthentication(t *testing.T) {
	router := consultationFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/consultation/appt-1/join", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
