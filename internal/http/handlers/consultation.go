package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carelink/telehealth-gateway/internal/http/middleware"
	"github.com/carelink/telehealth-gateway/internal/platform"
	"github.com/carelink/telehealth-gateway/internal/video"
	"github.com/carelink/telehealth-gateway/pkg/logging"
)

// ConsultationHandler admits appointment participants into their video
// room. Only the appointment's patient and doctor may join; the doctor
// joins as host.
type ConsultationHandler struct {
	platform *platform.Client
	video    *video.Service
	logger   *logging.Logger
}

// NewConsultationHandler creates the consultation handler.
func NewConsultationHandler(client *platform.Client, videoSvc *video.Service, logger *logging.Logger) *ConsultationHandler {
	if client == nil || videoSvc == nil {
		panic("handlers: consultation handler missing required dependencies")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ConsultationHandler{platform: client, video: videoSvc, logger: logger}
}

// Join serves GET /consultation/{appointmentID}/join.
func (h *ConsultationHandler) Join(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	appointmentID := chi.URLParam(r, "appointmentID")
	if appointmentID == "" {
		jsonError(w, "appointment id is required", http.StatusBadRequest)
		return
	}

	appt, err := h.platform.Appointment(r.Context(), appointmentID)
	if err != nil {
		h.logger.Error("appointment fetch failed", "appointment_id", appointmentID, "error", err)
		jsonError(w, "appointment not found", http.StatusNotFound)
		return
	}

	isPatient := user.ID == appt.PatientID
	isDoctor := appt.DoctorID != "" && (user.DoctorID == appt.DoctorID || user.ID == appt.DoctorID)
	if !isPatient && !isDoctor {
		jsonError(w, "you are not a participant in this consultation", http.StatusForbidden)
		return
	}

	// Room creation is idempotent per appointment on the provider side.
	room, err := h.video.CreateRoom(r.Context(), appt.ID)
	if err != nil {
		h.logger.Error("room creation failed", "appointment_id", appt.ID, "error", err)
		jsonError(w, "video service unavailable", http.StatusBadGateway)
		return
	}

	token, err := h.video.JoinToken(room.ID, user.ID, user.FullName, isDoctor, 0)
	if err != nil {
		h.logger.Error("join token signing failed", "room_id", room.ID, "error", err)
		jsonError(w, "video service unavailable", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"room_id":  room.ID,
		"room_url": room.URL,
		"token":    token,
		"is_host":  isDoctor,
	})
}
