package handlers

import (
	"net/http"
	"time"

	"github.com/carelink/telehealth-gateway/internal/http/middleware"
	"github.com/carelink/telehealth-gateway/internal/platform"
	"github.com/carelink/telehealth-gateway/internal/session"
	"github.com/carelink/telehealth-gateway/internal/tenancy"
	"github.com/carelink/telehealth-gateway/pkg/logging"
)

// DashboardHandler aggregates scheduling-backend data into the per-role
// dashboard payloads. Each endpoint sits behind the route guard for its
// role, so the session user in context is always present and role-correct.
type DashboardHandler struct {
	platform *platform.Client
	logger   *logging.Logger
	now      func() time.Time
}

// NewDashboardHandler creates the dashboard handler.
func NewDashboardHandler(client *platform.Client, logger *logging.Logger) *DashboardHandler {
	if client == nil {
		panic("handlers: platform client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DashboardHandler{platform: client, logger: logger, now: time.Now}
}

func (h *DashboardHandler) user(w http.ResponseWriter, r *http.Request) (*session.User, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return nil, false
	}
	return user, true
}

// Patient serves GET /dashboard/api/overview: the patient's upcoming
// appointments plus prescriptions and refunds. Appointments are the core of
// the page; the other two degrade to empty lists when their backends fail.
func (h *DashboardHandler) Patient(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}

	appts, err := h.platform.PatientAppointments(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("patient appointments fetch failed", "user_id", user.ID, "error", err)
		jsonError(w, "scheduling service unavailable", http.StatusBadGateway)
		return
	}

	prescriptions, err := h.platform.PatientPrescriptions(r.Context(), user.ID)
	if err != nil {
		h.logger.Warn("patient prescriptions fetch failed", "user_id", user.ID, "error", err)
		prescriptions = []platform.Prescription{}
	}
	refunds, err := h.platform.PatientRefunds(r.Context(), user.ID)
	if err != nil {
		h.logger.Warn("patient refunds fetch failed", "user_id", user.ID, "error", err)
		refunds = []platform.Refund{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":          user,
		"appointments":  appts,
		"prescriptions": prescriptions,
		"refunds":       refunds,
	})
}

// Doctor serves GET /doctor/api/overview: today's schedule.
func (h *DashboardHandler) Doctor(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}

	doctorID := user.DoctorID
	if doctorID == "" {
		doctorID = user.ID
	}
	schedule, err := h.platform.DoctorSchedule(r.Context(), doctorID, h.now())
	if err != nil {
		h.logger.Error("doctor schedule fetch failed", "doctor_id", doctorID, "error", err)
		jsonError(w, "scheduling service unavailable", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":     user,
		"schedule": schedule,
	})
}

// Hospital serves GET /hospital/api/overview: hospital stats plus the
// staff roster.
func (h *DashboardHandler) Hospital(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	hospitalID, ok := tenancy.HospitalIDFromContext(r.Context())
	if !ok {
		hospitalID = user.HospitalID
	}
	if hospitalID == "" {
		jsonError(w, "no hospital linked to this account", http.StatusForbidden)
		return
	}

	stats, err := h.platform.HospitalOverview(r.Context(), hospitalID)
	if err != nil {
		h.logger.Error("hospital overview fetch failed", "hospital_id", hospitalID, "error", err)
		jsonError(w, "scheduling service unavailable", http.StatusBadGateway)
		return
	}
	doctors, err := h.platform.HospitalDoctors(r.Context(), hospitalID)
	if err != nil {
		h.logger.Error("hospital doctors fetch failed", "hospital_id", hospitalID, "error", err)
		jsonError(w, "scheduling service unavailable", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":    user,
		"stats":   stats,
		"doctors": doctors,
	})
}

// Admin serves GET /admin/api/overview: platform-wide stats.
func (h *DashboardHandler) Admin(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}

	stats, err := h.platform.SystemOverview(r.Context())
	if err != nil {
		h.logger.Error("system overview fetch failed", "error", err)
		jsonError(w, "scheduling service unavailable", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":  user,
		"stats": stats,
	})
}
