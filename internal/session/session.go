// Package session owns the authentication session lifecycle: the token store,
// the one-shot initializer that restores persisted credentials, and the
// per-browser-session context that route guards observe.
package session

import (
	"strings"
	"time"
)

// Role is the access-control category determining which dashboard area a user
// may enter. The enum is closed; pharmacy dashboards exist as routes but have
// no role mapped to them yet.
type Role string

const (
	RolePatient       Role = "patient"
	RoleDoctor        Role = "doctor"
	RoleHospitalAdmin Role = "hospital_admin"
	RoleAdmin         Role = "admin"
)

// ParseRole maps a raw string onto the closed role enum.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RolePatient:
		return RolePatient, true
	case RoleDoctor:
		return RoleDoctor, true
	case RoleHospitalAdmin:
		return RoleHospitalAdmin, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// User is the profile attached to an authenticated session. Role is immutable
// for the life of the session; a role change requires re-authentication.
type User struct {
	ID                string    `json:"id"`
	Email             string    `json:"email,omitempty"`
	Phone             string    `json:"phone,omitempty"`
	FullName          string    `json:"full_name"`
	Role              Role      `json:"role"`
	ProfilePictureURL string    `json:"profile_picture_url,omitempty"`
	HospitalID        string    `json:"hospital_id,omitempty"`
	DoctorID          string    `json:"doctor_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Session is the authenticated credential bundle held for a browser session.
type Session struct {
	User         *User     `json:"user"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token has passed its expiry.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Valid reports whether the session can authenticate a request right now.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.User != nil && !s.Expired(now)
}
