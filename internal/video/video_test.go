package video

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestCreateRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/rooms" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["name"] != "consult-appt-1" {
			t.Errorf("room name = %v", body["name"])
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Room{ID: "room-9", URL: "https://video.example/room-9"})
	}))
	t.Cleanup(srv.Close)

	svc := NewService(srv.URL, "video-key", nil)
	room, err := svc.CreateRoom(context.Background(), "appt-1")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if room.ID != "room-9" {
		t.Errorf("room = %+v", room)
	}
}

func TestJoinToken(t *testing.T) {
	svc := NewService("https://video.example", "video-key", nil)

	signed, err := svc.JoinToken("room-9", "auth-1", "Dr. Rao", true, 30*time.Minute)
	if err != nil {
		t.Fatalf("JoinToken: %v", err)
	}

	claims := &JoinClaims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(t *jwt.Token) (any, error) {
		return []byte("video-key"), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("token invalid: %v", err)
	}
	if claims.RoomID != "room-9" || !claims.IsHost || claims.Subject != "auth-1" {
		t.Errorf("claims = %+v", claims)
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl < 25*time.Minute || ttl > 31*time.Minute {
		t.Errorf("ttl = %v, want about 30m", ttl)
	}
}

func TestJoinTokenRequiresKey(t *testing.T) {
	svc := NewService("https://video.example", "", nil)
	if _, err := svc.JoinToken("room-9", "auth-1", "Pat", false, 0); err == nil {
		t.Error("expected error without an api key")
	}
}
