// Package routes holds the static role-aware route table: which dashboard
// root each role lands on, which role each path prefix requires, and the
// crawl-excluded prefixes served through robots.txt.
package routes

import (
	"strings"

	"github.com/carelink/telehealth-gateway/internal/session"
)

// Well-known paths.
const (
	LoginPath         = "/login"
	DashboardRoot     = "/dashboard"
	OAuthCallbackPath = "/auth/callback"
)

// dashboardRoots is the fixed role→landing table. Patient is the default.
var dashboardRoots = map[session.Role]string{
	session.RoleAdmin:         "/admin",
	session.RoleHospitalAdmin: "/hospital",
	session.RoleDoctor:        "/doctor",
	session.RolePatient:       DashboardRoot,
}

// guardedPrefixes maps each role area's path prefix to the role it requires.
// The pharmacy prefix is deliberately absent: no role maps to it (see
// DESIGN.md), so nothing is mounted under it.
var guardedPrefixes = map[string]session.Role{
	DashboardRoot: session.RolePatient,
	"/doctor":     session.RoleDoctor,
	"/hospital":   session.RoleHospitalAdmin,
	"/admin":      session.RoleAdmin,
}

// crawlExcludedPrefixes lists every role-scoped prefix disallowed for
// crawlers, including areas (pharmacy, consultation, api) that carry no
// guard of their own.
var crawlExcludedPrefixes = []string{
	"/patient/",
	"/dashboard/",
	"/doctor/",
	"/hospital/",
	"/admin/",
	"/pharmacy/",
	"/consultation/",
	"/api/",
}

// RoleDashboard returns the dashboard root for a role. Unknown roles get the
// patient default.
func RoleDashboard(role session.Role) string {
	if root, ok := dashboardRoots[role]; ok {
		return root
	}
	return DashboardRoot
}

// ResolveRedirect computes the landing path for a freshly authenticated user.
// Only the generic dashboard root dispatches by role; any other requested
// path passes through unchanged.
func ResolveRedirect(role session.Role, requestedPath string) string {
	if requestedPath == DashboardRoot || requestedPath == "" || requestedPath == "/" {
		return RoleDashboard(role)
	}
	return requestedPath
}

// RequiredRole returns the role an area demands for the given path, if any.
func RequiredRole(path string) (session.Role, bool) {
	for prefix, role := range guardedPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return role, true
		}
	}
	return "", false
}

// ResolveRole applies the canonical role fallback chain: the stored profile
// record wins, then the identity provider's user metadata, then the patient
// default. The order decides access for users whose profile record has not
// synced yet, and every caller (OAuth callback, password login, OTP verify)
// must go through this one function.
func ResolveRole(profileRole, metadataRole string) session.Role {
	if role, ok := session.ParseRole(profileRole); ok {
		return role
	}
	if role, ok := session.ParseRole(metadataRole); ok {
		return role
	}
	return session.RolePatient
}

// LoginErrorPath builds the login redirect used when an authentication flow
// fails; the message is carried in the query string so the user never lands
// on a blank page.
func LoginErrorPath(message string) string {
	return LoginPath + "?error=" + queryEscape(message)
}

func queryEscape(s string) string {
	// url.QueryEscape encodes spaces as '+', which reads poorly when the
	// login page echoes the message back. Encode minimally instead.
	replacer := strings.NewReplacer(
		" ", "%20",
		"&", "%26",
		"#", "%23",
		"?", "%3F",
		"=", "%3D",
		"+", "%2B",
	)
	return replacer.Replace(s)
}
