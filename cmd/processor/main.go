// Package main is the entrypoint for the signal processor worker.
//
// The processor runs on a schedule (EventBridge rule, every minute in
// production) and drains the unprocessed portion of the signal event log:
// it claims a batch of signals, matches them against enabled notification
// hooks, resolves recipients, renders templates, and writes idempotent
// notification queue entries for the delivery subsystem.
//
// This file handles dependency wiring (cold start) and delegates all
// business logic to internal/processor. In local mode (APP_ENV=local, no
// Lambda runtime detected) it runs a single batch and exits, which is the
// loop cron invokes during development.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"signalpipe/internal/config"
	"signalpipe/internal/db"
	"signalpipe/internal/processor"
	"signalpipe/internal/queue"
	"signalpipe/internal/recipients"
	"signalpipe/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var _ types.Logger = (*slogAdapter)(nil)

// RunInput is the optional invocation payload. Scheduled invocations send an
// empty payload; manual invocations may carry a reason for the audit trail.
type RunInput struct {
	Reason string `json:"reason,omitempty"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("signal processor initializing (cold start)")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	proc, err := buildProcessor(ctx, cfg, pool, logger)
	if err != nil {
		logger.Error("failed to wire processor", "error", err)
		os.Exit(1)
	}

	logger.Info("signal processor initialized",
		"batch_size", cfg.Processor.BatchSize,
		"claim_lease", cfg.Processor.ClaimLease,
		"hook_concurrency", cfg.Processor.HookConcurrency,
	)

	if isLambdaEnvironment() {
		lambda.Start(newHandler(proc, logger))
		return
	}

	// Local mode: one synchronous batch.
	result, err := proc.ProcessPending(ctx)
	if err != nil {
		logger.Error("processing run failed", "error", err)
		pool.Close()
		os.Exit(1)
	}
	logger.Info("processing run complete",
		"signals_claimed", result.SignalsClaimed,
		"signals_processed", result.SignalsProcessed,
		"notifications_created", result.NotificationsCreated,
		"duration", result.Duration,
	)
	pool.Close()
}

// buildProcessor wires the repositories, recipient resolution, wake-up
// publishing, and metrics into a ready Processor.
func buildProcessor(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (*processor.Processor, error) {
	typedLogger := &slogAdapter{logger: logger}

	signalRepo := db.NewSignalEventRepository(pool)
	hookRepo := db.NewHookRegistryRepository(pool)
	templateRepo := db.NewTemplateRepository(pool)
	queueRepo := db.NewNotificationQueueRepository(pool)

	// Recipient resolution: static fallback table always exists; the HTTP
	// directory is layered on top when a base URL is configured.
	fallbackRoles, err := config.ParseFallbackRoles(cfg.Directory.FallbackRoles)
	if err != nil {
		return nil, fmt.Errorf("buildProcessor: %w", err)
	}
	var directory recipients.RoleDirectory = recipients.NewStaticDirectory(fallbackRoles)
	if cfg.Directory.BaseURL != "" {
		httpClient := &http.Client{Timeout: cfg.Directory.Timeout}
		directory = recipients.NewHTTPDirectory(httpClient, cfg.Directory.BaseURL, directory, typedLogger)
	}
	resolver := recipients.NewResolver(directory, typedLogger)

	var wakeup processor.WakeupPublisher
	var metrics processor.Metrics
	if cfg.AWS.DeliveryQueueURL != "" || cfg.Environment != "local" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return nil, fmt.Errorf("buildProcessor: loading AWS config: %w", err)
		}

		if cfg.AWS.DeliveryQueueURL != "" {
			sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
				if cfg.AWS.EndpointURL != "" {
					o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
				}
			})
			wakeup = queue.NewDeliveryTrigger(sqsClient, cfg.AWS.DeliveryQueueURL, types.RealClock{}, typedLogger)
		}

		if cfg.Environment != "local" {
			cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
				if cfg.AWS.EndpointURL != "" {
					o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
				}
			})
			metrics = processor.NewCloudWatchMetrics(cwClient, typedLogger)
		}
	}

	return processor.New(processor.Deps{
		Events:    signalRepo,
		Hooks:     hookRepo,
		Templates: templateRepo,
		Queue:     queueRepo,
		Resolver:  resolver,
		Wakeup:    wakeup,
		Metrics:   metrics,
		Clock:     types.RealClock{},
		Logger:    typedLogger,
	}, processor.Config{
		BatchSize:       cfg.Processor.BatchSize,
		ClaimLease:      cfg.Processor.ClaimLease,
		HookTimeout:     cfg.Processor.HookTimeout,
		HookConcurrency: cfg.Processor.HookConcurrency,
	}), nil
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// newHandler creates the Lambda handler that runs one processing batch per
// invocation. Batch-level failures are returned so the invocation is marked
// failed and alarmable; per-signal failures are inside the result.
func newHandler(proc *processor.Processor, logger *slog.Logger) func(ctx context.Context, input RunInput) (processor.BatchResult, error) {
	return func(ctx context.Context, input RunInput) (processor.BatchResult, error) {
		start := time.Now()
		logger.InfoContext(ctx, "processor handler invoked", "reason", input.Reason)

		result, err := proc.ProcessPending(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "processing run failed", "error", err)
			return processor.BatchResult{}, err
		}

		logger.InfoContext(ctx, "processing run complete",
			"signals_claimed", result.SignalsClaimed,
			"signals_processed", result.SignalsProcessed,
			"notifications_created", result.NotificationsCreated,
			"duration", time.Since(start),
		)
		return result, nil
	}
}
