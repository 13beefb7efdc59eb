package identity

import (
	"context"
	"errors"
	"time"

	"github.com/carelink/telehealth-gateway/internal/profiles"
	"github.com/carelink/telehealth-gateway/internal/routes"
	"github.com/carelink/telehealth-gateway/internal/session"
	"github.com/carelink/telehealth-gateway/pkg/logging"
)

// ProfileLookup fetches the stored profile for an identity-provider user id.
type ProfileLookup interface {
	GetByAuthID(ctx context.Context, authID string) (*profiles.Profile, error)
}

// SessionSource turns identity-backend grants into application sessions. It
// is the single place where tokens, accounts, and profile records meet, so
// the role fallback chain runs identically for every sign-in flow.
type SessionSource struct {
	client   *Client
	profiles ProfileLookup
	logger   *logging.Logger
}

// NewSessionSource wires a session source. profiles may be nil when the
// gateway runs without a database; the metadata role then decides alone.
func NewSessionSource(client *Client, profiles ProfileLookup, logger *logging.Logger) *SessionSource {
	if logger == nil {
		logger = logging.Default()
	}
	return &SessionSource{client: client, profiles: profiles, logger: logger}
}

// FromCode redeems an OAuth authorization code into a session.
func (s *SessionSource) FromCode(ctx context.Context, code string) (*session.Session, error) {
	tokens, account, err := s.client.ExchangeCodeForSession(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.build(ctx, tokens, account)
}

// FromPassword performs a password sign-in.
func (s *SessionSource) FromPassword(ctx context.Context, email, password string) (*session.Session, error) {
	tokens, account, err := s.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.build(ctx, tokens, account)
}

// FromOTP redeems a one-time passcode.
func (s *SessionSource) FromOTP(ctx context.Context, email, phone, code string) (*session.Session, error) {
	tokens, account, err := s.client.VerifyOTP(ctx, email, phone, code)
	if err != nil {
		return nil, err
	}
	return s.build(ctx, tokens, account)
}

// Refresh revalidates a persisted session against the identity backend,
// renewing tokens when a refresh token is available and otherwise checking
// the access token directly. It satisfies the session initializer's
// refresher contract.
func (s *SessionSource) Refresh(ctx context.Context, stale *session.Session) (*session.Session, error) {
	if stale == nil {
		return nil, ErrNoUser
	}

	if stale.RefreshToken != "" {
		tokens, account, err := s.client.RefreshSession(ctx, stale.RefreshToken)
		if err == nil {
			return s.build(ctx, tokens, account)
		}
		if !errors.Is(err, ErrInvalidCredentials) && !errors.Is(err, ErrInvalidToken) {
			return nil, err
		}
		// Refresh token revoked or consumed; the access token may still be live.
	}

	if stale.AccessToken == "" || stale.Expired(time.Now()) {
		return nil, ErrInvalidToken
	}
	account, err := s.client.GetUser(ctx, stale.AccessToken)
	if err != nil {
		return nil, err
	}
	tokens := &Tokens{
		AccessToken:  stale.AccessToken,
		RefreshToken: stale.RefreshToken,
		ExpiresAt:    stale.ExpiresAt,
	}
	return s.build(ctx, tokens, account)
}

// SignOut revokes the session's tokens at the identity backend.
func (s *SessionSource) SignOut(ctx context.Context, sess *session.Session) error {
	if sess == nil || sess.AccessToken == "" {
		return nil
	}
	return s.client.SignOut(ctx, sess.AccessToken)
}

func (s *SessionSource) build(ctx context.Context, tokens *Tokens, account *Account) (*session.Session, error) {
	if account == nil {
		return nil, ErrNoUser
	}

	user := &session.User{
		ID:                account.ID,
		Email:             account.Email,
		Phone:             account.Phone,
		FullName:          account.MetadataString("full_name"),
		ProfilePictureURL: account.MetadataString("avatar_url"),
		CreatedAt:         account.CreatedAt,
		UpdatedAt:         account.UpdatedAt,
	}

	var profileRole string
	if s.profiles != nil {
		profile, err := s.profiles.GetByAuthID(ctx, account.ID)
		switch {
		case err == nil:
			profileRole = profile.Role
			if profile.FullName != "" {
				user.FullName = profile.FullName
			}
			if profile.ProfilePictureURL != "" {
				user.ProfilePictureURL = profile.ProfilePictureURL
			}
			user.HospitalID = profile.HospitalID
			user.DoctorID = profile.DoctorID
		case errors.Is(err, profiles.ErrProfileNotFound):
			// New sign-up whose profile row has not synced yet. Metadata decides.
		default:
			s.logger.Warn("profile lookup failed, falling back to metadata role", "auth_id", account.ID, "error", err)
		}
	}

	user.Role = routes.ResolveRole(profileRole, account.MetadataString("role"))

	return &session.Session{
		User:         user,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
	}, nil
}
