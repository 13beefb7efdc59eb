package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/carelink/telehealth-gateway/pkg/logging"
)

const (
	receiveBatchSize   = 5
	receiveWaitSeconds = 10
)

// Worker drains the notification queue and delivers email. Failures mark the
// job failed and drop the message; the job record is the retry ledger, not
// the queue.
type Worker struct {
	queue  Queue
	jobs   JobUpdater
	sender EmailSender
	logger *logging.Logger

	count int
	wg    sync.WaitGroup
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*Worker)

// WithWorkerCount sets the number of concurrent consumers.
func WithWorkerCount(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.count = n
		}
	}
}

// NewWorker builds a queue consumer. jobs may be nil when job tracking is
// disabled.
func NewWorker(queue Queue, jobs JobUpdater, sender EmailSender, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if queue == nil {
		panic("notify: queue cannot be nil")
	}
	if sender == nil {
		panic("notify: sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	w := &Worker{
		queue:  queue,
		jobs:   jobs,
		sender: sender,
		logger: logger,
		count:  2,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the consumer goroutines. They run until ctx is canceled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.count; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.loop(ctx)
		}()
	}
}

// Wait blocks until all consumers have exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		messages, err := w.queue.Receive(ctx, receiveBatchSize, receiveWaitSeconds)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			w.logger.Error("notify worker receive failed", "error", err)
			continue
		}

		for _, msg := range messages {
			w.process(ctx, msg)
		}
	}
}

func (w *Worker) process(ctx context.Context, msg queueMessage) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("notify worker dropping malformed payload", "error", err, "message_id", msg.ID)
		_ = w.queue.Delete(ctx, msg.ReceiptHandle)
		return
	}

	if err := w.sender.Send(ctx, payload.Email); err != nil {
		w.logger.Error("notification delivery failed", "error", err, "job_id", payload.ID, "kind", payload.Kind)
		w.markFailed(ctx, payload.ID, err.Error())
		_ = w.queue.Delete(ctx, msg.ReceiptHandle)
		return
	}

	w.markSent(ctx, payload.ID)
	if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		w.logger.Warn("failed to delete queue message", "error", err, "job_id", payload.ID)
	}
	w.logger.Info("notification delivered", "job_id", payload.ID, "kind", payload.Kind, "to", payload.Email.To)
}

func (w *Worker) markSent(ctx context.Context, jobID string) {
	if w.jobs == nil {
		return
	}
	if err := w.jobs.MarkSent(ctx, jobID); err != nil {
		w.logger.Warn("failed to mark job sent", "error", err, "job_id", jobID)
	}
}

func (w *Worker) markFailed(ctx context.Context, jobID, errMsg string) {
	if w.jobs == nil {
		return
	}
	if err := w.jobs.MarkFailed(ctx, jobID, errMsg); err != nil {
		w.logger.Warn("failed to mark job failed", "error", err, "job_id", jobID)
	}
}
