package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/carelink/telehealth-gateway/internal/compliance"
	"github.com/carelink/telehealth-gateway/pkg/logging"
)

// AuditAdminHandler exposes the auth audit trail to system admins: filtered
// event queries and monthly activity exports.
type AuditAdminHandler struct {
	audit    *compliance.AuditService
	reporter *compliance.Reporter
	logger   *logging.Logger
}

// NewAuditAdminHandler creates the audit admin handler. reporter is optional;
// exports return 503 without it.
func NewAuditAdminHandler(audit *compliance.AuditService, reporter *compliance.Reporter, logger *logging.Logger) *AuditAdminHandler {
	if audit == nil {
		panic("handlers: audit service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AuditAdminHandler{audit: audit, reporter: reporter, logger: logger}
}

// List serves GET /admin/api/audit-events with optional filters.
func (h *AuditAdminHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := compliance.AuditFilter{
		UserID:     q.Get("user_id"),
		EventType:  compliance.AuditEventType(q.Get("event_type")),
		HospitalID: q.Get("hospital_id"),
		Limit:      100,
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 1000 {
			jsonError(w, "limit must be between 1 and 1000", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			jsonError(w, "since must be RFC 3339", http.StatusBadRequest)
			return
		}
		filter.StartTime = since
	}

	events, err := h.audit.QueryEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("audit query failed", "error", err)
		jsonError(w, "could not query audit events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []compliance.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// Export serves POST /admin/api/audit-reports?month=2026-08, writing the
// month's activity report to object storage.
func (h *AuditAdminHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h.reporter == nil {
		jsonError(w, "report export is not configured", http.StatusServiceUnavailable)
		return
	}

	month, err := time.Parse("2006-01", r.URL.Query().Get("month"))
	if err != nil {
		jsonError(w, "month must be formatted 2006-01", http.StatusBadRequest)
		return
	}

	result, err := h.reporter.ExportMonth(r.Context(), month)
	if err != nil {
		h.logger.Error("audit report export failed", "month", month.Format("2006-01"), "error", err)
		jsonError(w, "report export failed", http.StatusInternalServerError)
		return
	}

	resp := map[string]any{
		"events_exported": result.EventsExported,
		"s3_key":          result.S3Key,
	}
	if result.S3Key != "" {
		if url, err := h.reporter.DownloadURL(r.Context(), result.S3Key, 15*time.Minute); err == nil {
			resp["download_url"] = url
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
