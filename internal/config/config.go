// Package config defines the global configuration structure for the signal
// pipeline. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain: OS environment (highest), then
// a dotenv file. Any missing required value or invalid format causes the
// process to fail immediately on startup.
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config is the top-level configuration struct for the pipeline. It is
// populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"signalpipe"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server    ServerConfig
	Database  DatabaseConfig
	AWS       AWSConfig
	Processor ProcessorConfig
	Directory DirectoryConfig
}

// ServerConfig holds HTTP server parameters for the API entrypoint.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// DeliveryQueueURL is the SQS queue the delivery subsystem listens on
	// for wake-up messages. Empty disables wake-up publishing.
	DeliveryQueueURL string `envconfig:"SQS_DELIVERY_QUEUE" validate:"omitempty,url"`

	// LocalStack support (empty in prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ProcessorConfig tunes the batch processing run.
type ProcessorConfig struct {
	BatchSize       int           `envconfig:"PROCESSOR_BATCH_SIZE" default:"100"`
	ClaimLease      time.Duration `envconfig:"PROCESSOR_CLAIM_LEASE" default:"5m"`
	HookTimeout     time.Duration `envconfig:"PROCESSOR_HOOK_TIMEOUT" default:"10s"`
	HookConcurrency int           `envconfig:"PROCESSOR_HOOK_CONCURRENCY" default:"4"`
}

// DirectoryConfig holds the role-directory collaborator settings. With no
// BaseURL the pipeline runs entirely on the static fallback table.
type DirectoryConfig struct {
	BaseURL string        `envconfig:"ROLE_DIRECTORY_URL" validate:"omitempty,url"`
	Timeout time.Duration `envconfig:"ROLE_DIRECTORY_TIMEOUT" default:"5s"`

	// FallbackRoles is a JSON object mapping role tags to address lists,
	// e.g. {"admin":["admin@example.com"]}. Used when no directory is
	// wired in or the directory is unavailable.
	FallbackRoles string `envconfig:"ROLE_FALLBACK_JSON" default:"{}" validate:"json"`
}

// ParseFallbackRoles decodes the ROLE_FALLBACK_JSON value into the role to
// address-list map consumed by the static recipient directory.
func ParseFallbackRoles(raw string) (map[string][]string, error) {
	if raw == "" {
		return map[string][]string{}, nil
	}
	var roles map[string][]string
	if err := json.Unmarshal([]byte(raw), &roles); err != nil {
		return nil, fmt.Errorf("ParseFallbackRoles: %w", err)
	}
	return roles, nil
}
