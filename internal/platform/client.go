// Package platform is the HTTP client for the scheduling backend that owns
// appointments, doctors, and hospital records. The gateway aggregates its
// data into role dashboards but never writes clinical state itself.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/carelink/telehealth-gateway/pkg/logging"
)

var tracer = otel.Tracer("gateway.internal.platform")

// Appointment is a scheduled consultation as the backend reports it.
type Appointment struct {
	ID          string    `json:"id"`
	PatientID   string    `json:"patient_id"`
	PatientName string    `json:"patient_name"`
	DoctorID    string    `json:"doctor_id"`
	DoctorName  string    `json:"doctor_name"`
	HospitalID  string    `json:"hospital_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `json:"status"`
	VideoRoomID string    `json:"video_room_id,omitempty"`
}

// Prescription is an issued prescription record.
type Prescription struct {
	ID            string    `json:"id"`
	AppointmentID string    `json:"appointment_id"`
	DoctorName    string    `json:"doctor_name"`
	Medication    string    `json:"medication"`
	Instructions  string    `json:"instructions"`
	IssuedAt      time.Time `json:"issued_at"`
}

// Refund is a payment refund as the payment gateway reports it. Amounts are
// in paise.
type Refund struct {
	ID            string    `json:"id"`
	AppointmentID string    `json:"appointment_id"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// DoctorSummary is a staff listing row for hospital admins.
type DoctorSummary struct {
	ID                string `json:"id"`
	FullName          string `json:"full_name"`
	Specialty         string `json:"specialty"`
	AppointmentsToday int    `json:"appointments_today"`
	Available         bool   `json:"available"`
}

// HospitalStats aggregates a hospital's current load.
type HospitalStats struct {
	HospitalID        string `json:"hospital_id"`
	Doctors           int    `json:"doctors"`
	Patients          int    `json:"patients"`
	AppointmentsToday int    `json:"appointments_today"`
	PendingApprovals  int    `json:"pending_approvals"`
}

// SystemStats is the platform-wide view for system admins.
type SystemStats struct {
	Hospitals         int `json:"hospitals"`
	Doctors           int `json:"doctors"`
	Patients          int `json:"patients"`
	AppointmentsToday int `json:"appointments_today"`
}

// Client talks to the scheduling backend over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *logging.Logger
}

// NewClient creates a platform API client.
func NewClient(baseURL, apiKey string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// PatientAppointments lists upcoming appointments for a patient.
func (c *Client) PatientAppointments(ctx context.Context, patientID string) ([]Appointment, error) {
	ctx, span := tracer.Start(ctx, "platform.patient_appointments")
	defer span.End()

	var out []Appointment
	path := "/v1/patients/" + url.PathEscape(patientID) + "/appointments"
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PatientPrescriptions lists prescriptions issued to a patient.
func (c *Client) PatientPrescriptions(ctx context.Context, patientID string) ([]Prescription, error) {
	ctx, span := tracer.Start(ctx, "platform.patient_prescriptions")
	defer span.End()

	var out []Prescription
	path := "/v1/patients/" + url.PathEscape(patientID) + "/prescriptions"
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PatientRefunds lists payment refunds issued to a patient.
func (c *Client) PatientRefunds(ctx context.Context, patientID string) ([]Refund, error) {
	ctx, span := tracer.Start(ctx, "platform.patient_refunds")
	defer span.End()

	var out []Refund
	path := "/v1/patients/" + url.PathEscape(patientID) + "/refunds"
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DoctorSchedule lists a doctor's appointments for one day.
func (c *Client) DoctorSchedule(ctx context.Context, doctorID string, day time.Time) ([]Appointment, error) {
	ctx, span := tracer.Start(ctx, "platform.doctor_schedule")
	defer span.End()

	var out []Appointment
	path := "/v1/doctors/" + url.PathEscape(doctorID) + "/schedule?date=" + day.Format("2006-01-02")
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// HospitalDoctors lists the staff roster for a hospital.
func (c *Client) HospitalDoctors(ctx context.Context, hospitalID string) ([]DoctorSummary, error) {
	ctx, span := tracer.Start(ctx, "platform.hospital_doctors")
	defer span.End()

	var out []DoctorSummary
	path := "/v1/hospitals/" + url.PathEscape(hospitalID) + "/doctors"
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// HospitalOverview fetches a hospital's aggregate stats.
func (c *Client) HospitalOverview(ctx context.Context, hospitalID string) (*HospitalStats, error) {
	ctx, span := tracer.Start(ctx, "platform.hospital_overview")
	defer span.End()

	var out HospitalStats
	path := "/v1/hospitals/" + url.PathEscape(hospitalID) + "/stats"
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SystemOverview fetches platform-wide stats for system admins.
func (c *Client) SystemOverview(ctx context.Context) (*SystemStats, error) {
	ctx, span := tracer.Start(ctx, "platform.system_overview")
	defer span.End()

	var out SystemStats
	if err := c.get(ctx, "/v1/admin/stats", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Appointment fetches one appointment by id.
func (c *Client) Appointment(ctx context.Context, id string) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "platform.appointment")
	defer span.End()

	var out Appointment
	if err := c.get(ctx, "/v1/appointments/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("platform: build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("platform: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("platform call failed", "path", path, "status", resp.StatusCode)
		return fmt.Errorf("platform: %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("platform: decode response: %w", err)
	}
	return nil
}
