package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queue is the transport carrying notification jobs between the publisher
// and the delivery worker.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Kind identifies the notification a queued job should produce.
type Kind string

// The identity provider delivers OTP codes itself and the platform backend
// owns appointment reminders, so sign-in alerts are the only kind published
// here today.
const (
	KindSecurityAlert Kind = "security_alert"
)

// queuePayload is the wire format of a queued notification job.
type queuePayload struct {
	ID        string       `json:"id"`
	Kind      Kind         `json:"kind"`
	UserID    string       `json:"user_id,omitempty"`
	Email     EmailMessage `json:"email"`
	CreatedAt time.Time    `json:"created_at"`
}

func encodePayload(payload queuePayload) (queuePayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}
	if payload.CreatedAt.IsZero() {
		payload.CreatedAt = time.Now().UTC()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("notify: failed to encode payload: %w", err)
	}
	return payload, string(body), nil
}
