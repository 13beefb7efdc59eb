package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/carelink/telehealth-gateway/internal/config"
	"github.com/carelink/telehealth-gateway/internal/notify"
	"github.com/carelink/telehealth-gateway/pkg/logging"
)

// BuildEmailSender picks the configured mail provider. Falls back to the
// logging stub so development environments never need provider keys.
func BuildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			logger.Info("email provider: sendgrid")
			return sender
		}
	case "ses":
		if cfg.SESFromEmail != "" {
			logger.Info("email provider: ses", "from", cfg.SESFromEmail)
			return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
				FromEmail: cfg.SESFromEmail,
				FromName:  cfg.SESFromName,
			}, logger)
		}
	}

	logger.Warn("no email provider configured, using stub sender")
	return notify.NewStubEmailSender(logger)
}

// BuildNotifyQueue returns the notification queue: in-memory for local
// development, SQS otherwise.
func BuildNotifyQueue(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.Queue {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.UseMemoryQueue || cfg.NotifyQueueURL == "" {
		logger.Info("notify queue: in-memory")
		return notify.NewMemoryQueue(256)
	}
	logger.Info("notify queue: sqs", "url", cfg.NotifyQueueURL)
	return notify.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.NotifyQueueURL)
}
