package notify

import (
	"context"
	"fmt"

	"github.com/carelink/telehealth-gateway/pkg/logging"
)

// BodyDecorator amends outbound email bodies before they are enqueued,
// typically to append a compliance footer.
type BodyDecorator interface {
	Apply(body string) string
}

// Publisher enqueues notification jobs for asynchronous delivery.
type Publisher struct {
	queue    Queue
	jobs     JobRecorder
	decorate BodyDecorator
	logger   *logging.Logger
}

// PublisherOption customizes publisher behavior.
type PublisherOption func(*Publisher)

// WithBodyDecorator applies d to every email body before enqueueing.
func WithBodyDecorator(d BodyDecorator) PublisherOption {
	return func(p *Publisher) {
		p.decorate = d
	}
}

// NewPublisher creates a queue-backed publisher. jobs may be nil when job
// tracking is disabled.
func NewPublisher(queue Queue, jobs JobRecorder, logger *logging.Logger, opts ...PublisherOption) *Publisher {
	if queue == nil {
		panic("notify: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	p := &Publisher{
		queue:  queue,
		jobs:   jobs,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EnqueueSecurityAlert publishes a new-sign-in alert job.
func (p *Publisher) EnqueueSecurityAlert(ctx context.Context, userID, email, name, remoteIP string) error {
	return p.enqueue(ctx, queuePayload{
		Kind:   KindSecurityAlert,
		UserID: userID,
		Email: EmailMessage{
			To:      email,
			ToName:  name,
			Subject: "New sign-in to your CareLink account",
			Body:    fmt.Sprintf("A new sign-in to your account was detected from %s. If this was not you, reset your password immediately.", remoteIP),
		},
	})
}

func (p *Publisher) enqueue(ctx context.Context, payload queuePayload) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if p.decorate != nil {
		payload.Email.Body = p.decorate.Apply(payload.Email.Body)
	}

	payload, body, err := encodePayload(payload)
	if err != nil {
		return err
	}

	if p.jobs != nil {
		if err := p.jobs.PutPending(ctx, &JobRecord{JobID: payload.ID, Kind: payload.Kind, UserID: payload.UserID}); err != nil {
			return err
		}
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("notify: failed to enqueue job: %w", err)
	}

	p.logger.Debug("notification job enqueued", "job_id", payload.ID, "kind", payload.Kind)
	return nil
}
