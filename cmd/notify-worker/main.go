package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"

	"github.com/carelink/telehealth-gateway/cmd/mainconfig"
	"github.com/carelink/telehealth-gateway/internal/app/bootstrap"
	appconfig "github.com/carelink/telehealth-gateway/internal/config"
	"github.com/carelink/telehealth-gateway/internal/notify"
	"github.com/carelink/telehealth-gateway/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if cfg.Env == "development" {
		logger = logging.NewText(cfg.LogLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	queue := bootstrap.BuildNotifyQueue(cfg, awsCfg, logger)
	sender := bootstrap.BuildEmailSender(cfg, awsCfg, logger)

	var jobs notify.JobUpdater
	if cfg.NotifyJobsTable != "" && !cfg.UseMemoryQueue {
		jobs = notify.NewJobStore(dynamodb.NewFromConfig(awsCfg), cfg.NotifyJobsTable, logger)
	}

	worker := notify.NewWorker(queue, jobs, sender, logger, notify.WithWorkerCount(cfg.WorkerCount))
	worker.Start(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down notify worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("notify worker stopped")
	case <-doneCtx.Done():
		logger.Error("notify worker shutdown timed out", "error", doneCtx.Err())
	}
}
