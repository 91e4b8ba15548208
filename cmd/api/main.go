// Package main is the entry point for the signal pipeline API server.
//
// It loads configuration, connects the database pool, wires the signal
// emitter, the processor (for the manual /v1/process trigger), and the
// inspection repositories into the HTTP chassis, and starts listening.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"signalpipe/internal/api"
	"signalpipe/internal/config"
	"signalpipe/internal/db"
	"signalpipe/internal/emitter"
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

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("signal pipeline API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()
	typedLogger := &slogAdapter{logger: logger}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("creating database pool: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	signalRepo := db.NewSignalEventRepository(pool)
	hookRepo := db.NewHookRegistryRepository(pool)
	templateRepo := db.NewTemplateRepository(pool)
	queueRepo := db.NewNotificationQueueRepository(pool)

	em := emitter.New(signalRepo, types.RealClock{}, typedLogger)

	fallbackRoles, err := config.ParseFallbackRoles(cfg.Directory.FallbackRoles)
	if err != nil {
		return fmt.Errorf("parsing fallback roles: %w", err)
	}
	var directory recipients.RoleDirectory = recipients.NewStaticDirectory(fallbackRoles)
	if cfg.Directory.BaseURL != "" {
		httpClient := &http.Client{Timeout: cfg.Directory.Timeout}
		directory = recipients.NewHTTPDirectory(httpClient, cfg.Directory.BaseURL, directory, typedLogger)
	}
	resolver := recipients.NewResolver(directory, typedLogger)

	// The manual /v1/process trigger shares the processor wiring with the
	// scheduled worker, minus CloudWatch metrics.
	var wakeup processor.WakeupPublisher
	if cfg.AWS.DeliveryQueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading AWS config: %w", err)
		}
		sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		wakeup = queue.NewDeliveryTrigger(sqsClient, cfg.AWS.DeliveryQueueURL, types.RealClock{}, typedLogger)
	}

	proc := processor.New(processor.Deps{
		Events:    signalRepo,
		Hooks:     hookRepo,
		Templates: templateRepo,
		Queue:     queueRepo,
		Resolver:  resolver,
		Wakeup:    wakeup,
		Clock:     types.RealClock{},
		Logger:    typedLogger,
	}, processor.Config{
		BatchSize:       cfg.Processor.BatchSize,
		ClaimLease:      cfg.Processor.ClaimLease,
		HookTimeout:     cfg.Processor.HookTimeout,
		HookConcurrency: cfg.Processor.HookConcurrency,
	})

	srv, err := api.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = []api.HealthProbe{dbProbe{pool: pool}}
	srv.MountRoutes(api.NewSignalHandler(em, proc, signalRepo, queueRepo, hookRepo))

	return runHTTPServer(srv, cfg, logger)
}

// dbProbe reports database reachability for the health endpoint.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p dbProbe) Name() string { return "database" }

func (p dbProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *api.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
