// Package video integrates the hosted video-consultation provider: room
// creation for appointments and signed join tokens for participants.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/carelink/telehealth-gateway/pkg/logging"
)

// Room is a provider-side consultation room.
type Room struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Service creates rooms and issues join tokens.
type Service struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *logging.Logger
	now     func() time.Time
}

// NewService wires a video provider client.
func NewService(baseURL, apiKey string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		now:     time.Now,
	}
}

// CreateRoom provisions a room for an appointment. Rooms are idempotent per
// appointment id on the provider side.
func (s *Service) CreateRoom(ctx context.Context, appointmentID string) (*Room, error) {
	body, err := json.Marshal(map[string]any{
		"name":    "consult-" + appointmentID,
		"privacy": "private",
	})
	if err != nil {
		return nil, fmt.Errorf("video: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/rooms", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("video: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("video: create room: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("video: create room: unexpected status %d", resp.StatusCode)
	}

	var room Room
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		return nil, fmt.Errorf("video: decode room: %w", err)
	}
	return &room, nil
}

// JoinClaims are the claims embedded in a join token.
type JoinClaims struct {
	jwt.RegisteredClaims
	RoomID   string `json:"room_id"`
	UserName string `json:"user_name"`
	IsHost   bool   `json:"is_host"`
}

// JoinToken signs a short-lived token admitting one participant to a room.
// Doctors join as hosts; patients as guests.
func (s *Service) JoinToken(roomID, userID, userName string, host bool, ttl time.Duration) (string, error) {
	if s.apiKey == "" {
		return "", fmt.Errorf("video: api key not configured")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := s.now()
	claims := JoinClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		RoomID:   roomID,
		UserName: userName,
		IsHost:   host,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.apiKey))
	if err != nil {
		return "", fmt.Errorf("video: sign join token: %w", err)
	}
	return signed, nil
}
