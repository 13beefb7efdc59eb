// Package compliance provides healthcare regulatory compliance features:
// an immutable auth-activity audit trail and exportable activity reports.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEventType represents the type of auth audit event.
type AuditEventType string

const (
	// EventLoginSucceeded is logged on any successful sign-in flow.
	EventLoginSucceeded AuditEventType = "auth.login_succeeded"
	// EventLoginFailed is logged when credentials are rejected.
	EventLoginFailed AuditEventType = "auth.login_failed"
	// EventOTPVerified is logged when a one-time passcode is redeemed.
	EventOTPVerified AuditEventType = "auth.otp_verified"
	// EventCallbackFailed is logged when an OAuth return leg cannot be redeemed.
	EventCallbackFailed AuditEventType = "auth.callback_failed"
	// EventAccessDenied is logged when the route guard blocks a signed-in user.
	EventAccessDenied AuditEventType = "auth.access_denied"
	// EventSessionRevoked is logged on logout or forced session invalidation.
	EventSessionRevoked AuditEventType = "auth.session_revoked"
)

// AuditEvent represents an immutable auth audit record. UserID is the
// identity-provider user id when known; failed sign-ins carry only the
// attempted identifier.
type AuditEvent struct {
	ID         string          `json:"id"`
	EventType  AuditEventType  `json:"event_type"`
	UserID     string          `json:"user_id,omitempty"`
	Role       string          `json:"role,omitempty"`
	HospitalID string          `json:"hospital_id,omitempty"`
	RemoteIP   string          `json:"remote_ip,omitempty"`
	Path       string          `json:"path,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AuditDetails contains event-specific details.
type AuditDetails struct {
	// For sign-in flows
	Flow       string `json:"flow,omitempty"`
	Identifier string `json:"identifier,omitempty"`
	Reason     string `json:"reason,omitempty"`

	// For guard denials
	RequiredRole string `json:"required_role,omitempty"`
}

// AuditService handles auth audit logging.
type AuditService struct {
	db *sql.DB
}

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

// LogEvent records an auth audit event.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO auth_audit_events (
			id, event_type, user_id, role, hospital_id,
			remote_ip, path, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		nullString(event.UserID),
		nullString(event.Role),
		nullString(event.HospitalID),
		nullString(event.RemoteIP),
		nullString(event.Path),
		event.Details,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}

	return nil
}

// LogLoginSucceeded logs a successful sign-in with the flow that produced it.
func (s *AuditService) LogLoginSucceeded(ctx context.Context, userID, role, hospitalID, remoteIP, flow string) error {
	detailsJSON, _ := json.Marshal(AuditDetails{Flow: flow})
	return s.LogEvent(ctx, AuditEvent{
		EventType:  EventLoginSucceeded,
		UserID:     userID,
		Role:       role,
		HospitalID: hospitalID,
		RemoteIP:   remoteIP,
		Details:    detailsJSON,
	})
}

// LogLoginFailed logs a rejected sign-in attempt. The attempted identifier is
// stored in details, never the credential itself.
func (s *AuditService) LogLoginFailed(ctx context.Context, identifier, remoteIP, flow, reason string) error {
	detailsJSON, _ := json.Marshal(AuditDetails{Flow: flow, Identifier: identifier, Reason: reason})
	return s.LogEvent(ctx, AuditEvent{
		EventType: EventLoginFailed,
		RemoteIP:  remoteIP,
		Details:   detailsJSON,
	})
}

// LogCallbackFailed logs a failed OAuth return leg.
func (s *AuditService) LogCallbackFailed(ctx context.Context, remoteIP, reason string) error {
	detailsJSON, _ := json.Marshal(AuditDetails{Flow: "oauth_callback", Reason: reason})
	return s.LogEvent(ctx, AuditEvent{
		EventType: EventCallbackFailed,
		RemoteIP:  remoteIP,
		Details:   detailsJSON,
	})
}

// LogAccessDenied logs a guard denial for a signed-in user.
func (s *AuditService) LogAccessDenied(ctx context.Context, userID, role, path, requiredRole string) error {
	detailsJSON, _ := json.Marshal(AuditDetails{RequiredRole: requiredRole})
	return s.LogEvent(ctx, AuditEvent{
		EventType: EventAccessDenied,
		UserID:    userID,
		Role:      role,
		Path:      path,
		Details:   detailsJSON,
	})
}

// LogSessionRevoked logs a logout or forced invalidation.
func (s *AuditService) LogSessionRevoked(ctx context.Context, userID, role, reason string) error {
	detailsJSON, _ := json.Marshal(AuditDetails{Reason: reason})
	return s.LogEvent(ctx, AuditEvent{
		EventType: EventSessionRevoked,
		UserID:    userID,
		Role:      role,
		Details:   detailsJSON,
	})
}

// QueryEvents retrieves audit events with filters.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT id, event_type, user_id, role, hospital_id,
			   remote_ip, path, details, created_at
		FROM auth_audit_events
		WHERE 1=1
	`
	var args []interface{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if filter.HospitalID != "" {
		query += fmt.Sprintf(" AND hospital_id = $%d", argIdx)
		args = append(args, filter.HospitalID)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var userID, role, hospitalID, remoteIP, path sql.NullString
		err := rows.Scan(
			&e.ID, &e.EventType, &userID, &role, &hospitalID,
			&remoteIP, &path, &e.Details, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.UserID = userID.String
		e.Role = role.String
		e.HospitalID = hospitalID.String
		e.RemoteIP = remoteIP.String
		e.Path = path.String
		events = append(events, e)
	}

	return events, nil
}

// AuditFilter specifies criteria for querying audit events.
type AuditFilter struct {
	UserID     string
	EventType  AuditEventType
	HospitalID string
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
	Offset     int
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
