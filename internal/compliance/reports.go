package compliance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/carelink/telehealth-gateway/pkg/logging"
)

// S3Client interface for S3 operations (allows mocking in tests)
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ReportPresigner produces presigned GET URLs for exported reports.
type ReportPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// eventSource lets tests feed events without a database.
type eventSource interface {
	QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
}

// Reporter exports monthly auth-activity reports to S3 in JSONL format for
// the compliance archive. Reports are append-only; a re-run for the same
// month overwrites with the same canonical key.
type Reporter struct {
	events  eventSource
	s3      S3Client
	presign ReportPresigner
	bucket  string
	logger  *logging.Logger
}

// ReporterConfig holds configuration for the Reporter.
type ReporterConfig struct {
	Audit     *AuditService
	S3        S3Client
	Presigner ReportPresigner
	Bucket    string
	Logger    *logging.Logger
}

// NewReporter creates a new Reporter instance.
func NewReporter(cfg ReporterConfig) *Reporter {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Reporter{
		events:  cfg.Audit,
		s3:      cfg.S3,
		presign: cfg.Presigner,
		bucket:  cfg.Bucket,
		logger:  cfg.Logger,
	}
}

func newReporterWithSource(src eventSource, s3c S3Client, bucket string, logger *logging.Logger) *Reporter {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reporter{events: src, s3: s3c, bucket: bucket, logger: logger}
}

// ReportResult contains the result of a report export.
type ReportResult struct {
	EventsExported int
	S3Key          string
	BytesWritten   int64
}

// ExportMonth exports all auth audit events for the month containing the
// given time.
func (r *Reporter) ExportMonth(ctx context.Context, month time.Time) (*ReportResult, error) {
	if r == nil || r.events == nil || r.s3 == nil || r.bucket == "" {
		return nil, fmt.Errorf("compliance: reporter not configured")
	}

	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)

	events, err := r.events.QueryEvents(ctx, AuditFilter{StartTime: start, EndTime: end})
	if err != nil {
		return nil, fmt.Errorf("compliance: fetch events: %w", err)
	}

	if len(events) == 0 {
		r.logger.Info("compliance: no auth events to export", "month", start.Format("2006-01"))
		return &ReportResult{}, nil
	}

	var buf bytes.Buffer
	for _, event := range events {
		line, err := json.Marshal(event)
		if err != nil {
			r.logger.Warn("compliance: failed to marshal event", "error", err, "event_id", event.ID)
			continue
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	s3Key := fmt.Sprintf("auth/reports/%d/%02d/auth_activity_%s.jsonl",
		start.Year(), start.Month(), start.Format("200601"))

	_, err = r.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(s3Key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
		Metadata: map[string]string{
			"report_month": start.Format("2006-01"),
			"event_count":  fmt.Sprintf("%d", len(events)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("compliance: s3 upload failed: %w", err)
	}

	r.logger.Info("compliance: exported auth activity report",
		"month", start.Format("2006-01"),
		"events", len(events),
		"s3_key", s3Key,
	)

	return &ReportResult{
		EventsExported: len(events),
		S3Key:          s3Key,
		BytesWritten:   int64(buf.Len()),
	}, nil
}

// DownloadURL returns a presigned GET URL for an exported report key.
func (r *Reporter) DownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if r == nil || r.presign == nil {
		return "", fmt.Errorf("compliance: presigner not configured")
	}
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	req, err := r.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) { o.Expires = expiry })
	if err != nil {
		return "", fmt.Errorf("compliance: presign report: %w", err)
	}
	return req.URL, nil
}
