// Package identity is the HTTP client for the hosted identity backend
// (a Supabase/GoTrue-style auth service). It owns code exchange, token
// refresh, password and OTP grants, and access-token verification. All
// session semantics live elsewhere; this package only talks wire format.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/carelink/telehealth-gateway/pkg/logging"
)

var tracer = otel.Tracer("gateway.internal.identity")

// Sentinel errors callers branch on.
var (
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrInvalidCode        = errors.New("identity: invalid or expired authorization code")
	ErrInvalidToken       = errors.New("identity: invalid or expired token")
	ErrNoUser             = errors.New("identity: no user for session")
)

// Account is the identity provider's view of a user, including the raw
// user-metadata bag where a role may be embedded before the profile record
// has synced.
type Account struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone"`
	UserMetadata map[string]any `json:"user_metadata"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// MetadataString returns a string field from the user-metadata bag.
func (a *Account) MetadataString(key string) string {
	if a == nil || a.UserMetadata == nil {
		return ""
	}
	if v, ok := a.UserMetadata[key].(string); ok {
		return v
	}
	return ""
}

// Tokens is an issued credential pair.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Client talks to the identity backend over HTTP.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
	logger  *logging.Logger
}

// NewClient creates an identity client for the given GoTrue-style base URL.
func NewClient(baseURL, anonKey string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

type tokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int      `json:"expires_in"`
	User         *Account `json:"user"`
}

type apiError struct {
	Message          string `json:"msg"`
	ErrorDescription string `json:"error_description"`
}

func (e *apiError) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.ErrorDescription
}

// ExchangeCodeForSession redeems a one-time authorization code from the
// OAuth return leg.
func (c *Client) ExchangeCodeForSession(ctx context.Context, code string) (*Tokens, *Account, error) {
	ctx, span := tracer.Start(ctx, "identity.exchange_code")
	defer span.End()

	if strings.TrimSpace(code) == "" {
		return nil, nil, ErrInvalidCode
	}

	tok, err := c.tokenGrant(ctx, "authorization_code", map[string]string{"code": code})
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, nil, ErrInvalidCode
		}
		return nil, nil, err
	}
	return tok.tokens(), tok.User, nil
}

// RefreshSession renews an expiring credential pair.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Tokens, *Account, error) {
	ctx, span := tracer.Start(ctx, "identity.refresh_session")
	defer span.End()

	if strings.TrimSpace(refreshToken) == "" {
		return nil, nil, ErrInvalidToken
	}

	tok, err := c.tokenGrant(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, nil, err
	}
	return tok.tokens(), tok.User, nil
}

// SignInWithPassword performs the password grant.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Tokens, *Account, error) {
	ctx, span := tracer.Start(ctx, "identity.password_grant")
	defer span.End()

	tok, err := c.tokenGrant(ctx, "password", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, nil, err
	}
	return tok.tokens(), tok.User, nil
}

// RequestOTP asks the backend to deliver a one-time passcode. Exactly one of
// email or phone must be set.
func (c *Client) RequestOTP(ctx context.Context, email, phone string) error {
	ctx, span := tracer.Start(ctx, "identity.request_otp")
	defer span.End()

	payload := map[string]any{"create_user": false}
	switch {
	case email != "":
		payload["email"] = email
	case phone != "":
		payload["phone"] = phone
	default:
		return fmt.Errorf("identity: otp request needs an email or phone")
	}

	return c.post(ctx, "/auth/v1/otp", payload, nil)
}

// VerifyOTP redeems a delivered passcode for a session.
func (c *Client) VerifyOTP(ctx context.Context, email, phone, code string) (*Tokens, *Account, error) {
	ctx, span := tracer.Start(ctx, "identity.verify_otp")
	defer span.End()

	payload := map[string]any{"token": code}
	if email != "" {
		payload["type"] = "email"
		payload["email"] = email
	} else {
		payload["type"] = "sms"
		payload["phone"] = phone
	}

	var tok tokenResponse
	if err := c.post(ctx, "/auth/v1/verify", payload, &tok); err != nil {
		return nil, nil, err
	}
	if tok.AccessToken == "" {
		return nil, nil, ErrInvalidCredentials
	}
	return tok.tokens(), tok.User, nil
}

// GetUser fetches the account behind an access token.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*Account, error) {
	ctx, span := tracer.Start(ctx, "identity.get_user")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("identity: build request: %w", err)
	}
	c.decorate(req)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity: get user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrInvalidToken
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity: get user: unexpected status %d", resp.StatusCode)
	}

	var account Account
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, fmt.Errorf("identity: decode user: %w", err)
	}
	if account.ID == "" {
		return nil, ErrNoUser
	}
	return &account, nil
}

// SignOut revokes the refresh-token family behind an access token.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	ctx, span := tracer.Start(ctx, "identity.sign_out")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		return fmt.Errorf("identity: build request: %w", err)
	}
	c.decorate(req)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("identity: sign out: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusUnauthorized {
		return fmt.Errorf("identity: sign out: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (t *tokenResponse) tokens() *Tokens {
	expires := time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
	if t.ExpiresIn == 0 {
		expires = time.Now().Add(time.Hour)
	}
	return &Tokens{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    expires,
	}
}

func (c *Client) tokenGrant(ctx context.Context, grantType string, fields map[string]string) (*tokenResponse, error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("identity.grant_type", grantType))

	payload := make(map[string]any, len(fields))
	for k, v := range fields {
		payload[k] = v
	}

	var tok tokenResponse
	path := "/auth/v1/token?grant_type=" + url.QueryEscape(grantType)
	if err := c.post(ctx, path, payload, &tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, ErrInvalidCredentials
	}
	return &tok, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("identity: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("identity: build request: %w", err)
	}
	c.decorate(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("identity: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		c.logger.Debug("identity call rejected", "path", path, "status", resp.StatusCode, "msg", apiErr.text())
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized ||
			resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusForbidden {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("identity: %s: unexpected status %d", path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("identity: decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) decorate(req *http.Request) {
	if c.anonKey != "" {
		req.Header.Set("apikey", c.anonKey)
	}
}
