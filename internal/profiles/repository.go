// Package profiles reads the application-side profile records that enrich
// identity-provider accounts with role, hospital linkage, and display data.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrProfileNotFound is returned when no profile row exists for an auth id.
var ErrProfileNotFound = errors.New("profiles: profile not found")

// Profile is the stored record for a signed-up user. AuthID is the identity
// provider's user id; HospitalID and DoctorID are set only for staff roles.
type Profile struct {
	AuthID            string    `json:"auth_id"`
	Email             string    `json:"email"`
	FullName          string    `json:"full_name"`
	Role              string    `json:"role"`
	ProfilePictureURL string    `json:"profile_picture_url"`
	HospitalID        string    `json:"hospital_id,omitempty"`
	DoctorID          string    `json:"doctor_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads profiles from the relational database.
type Repository struct {
	pool rowQuerier
}

// NewRepository initializes a repo backed by pgxpool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("profiles: pgx pool required")
	}
	return &Repository{pool: pool}
}

func newRepositoryWithQuerier(q rowQuerier) *Repository {
	if q == nil {
		panic("profiles: querier required")
	}
	return &Repository{pool: q}
}

// GetByAuthID fetches the profile for an identity-provider user id.
func (r *Repository) GetByAuthID(ctx context.Context, authID string) (*Profile, error) {
	query := `
		SELECT auth_id, email, full_name, COALESCE(role, ''),
		       COALESCE(profile_picture_url, ''),
		       COALESCE(hospital_id::text, ''), COALESCE(doctor_id::text, ''),
		       created_at, updated_at
		FROM profiles
		WHERE auth_id = $1
	`
	row := r.pool.QueryRow(ctx, query, authID)
	var p Profile
	if err := row.Scan(
		&p.AuthID,
		&p.Email,
		&p.FullName,
		&p.Role,
		&p.ProfilePictureURL,
		&p.HospitalID,
		&p.DoctorID,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("profiles: select failed: %w", err)
	}
	return &p, nil
}
