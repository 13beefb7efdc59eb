package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "platform-key", nil)
}

func TestPatientAppointments(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/patients/pat-1/appointments" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer platform-key" {
			t.Errorf("authorization = %q", got)
		}
		json.NewEncoder(w).Encode([]Appointment{
			{ID: "appt-1", PatientID: "pat-1", DoctorName: "Dr. Rao", Status: "confirmed"},
		})
	})

	appts, err := client.PatientAppointments(context.Background(), "pat-1")
	if err != nil {
		t.Fatalf("PatientAppointments: %v", err)
	}
	if len(appts) != 1 || appts[0].DoctorName != "Dr. Rao" {
		t.Errorf("appointments = %+v", appts)
	}
}

func TestDoctorScheduleSendsDate(t *testing.T) {
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("date"); got != "2026-09-01" {
			t.Errorf("date = %q", got)
		}
		json.NewEncoder(w).Encode([]Appointment{})
	})

	if _, err := client.DoctorSchedule(context.Background(), "doc-1", day); err != nil {
		t.Fatalf("DoctorSchedule: %v", err)
	}
}

func TestHospitalOverview(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(HospitalStats{HospitalID: "hosp-1", Doctors: 12, AppointmentsToday: 40})
	})

	stats, err := client.HospitalOverview(context.Background(), "hosp-1")
	if err != nil {
		t.Fatalf("HospitalOverview: %v", err)
	}
	if stats.Doctors != 12 || stats.AppointmentsToday != 40 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestClientSurfacesBackendErrors(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	if _, err := client.SystemOverview(context.Background()); err == nil {
		t.Error("expected error for 502 from backend")
	}
}
