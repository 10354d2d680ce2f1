// Package config loads the pipeline's closed set of environment
// variables and fails fast when a required one is missing.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the settings shared by both cmd/tile-worker and
// cmd/tile-ingest.
type Config struct {
	AWSRegion      string
	S3Bucket       string
	RunsTable      string
	TileJobsTable  string
	SecretsID      string
	StaleLockSecs  int64
	MaxRetries     int
	RequestTimeout int
	LogLevel       string

	// Required when Load is called with requireQueueURL (both the ingest
	// driver and the tile worker do).
	TileJobsQueueURL string

	// Worker-only.
	MaxWorkers       int
	PollWaitSeconds  int32
	VisibilityTimeout int32

	// Domain-stack additions this expansion introduces to configure the
	// vision client boundary SPEC_FULL.md concretizes.
	VisionAPIURL       string
	VisionAPISecretsID string
}

// Load reads the closed set of environment variables defined in
// SPEC_FULL.md §4.14, applying defaults and failing immediately if a
// required value is absent.
func Load(requireQueueURL bool) (*Config, error) {
	cfg := &Config{
		AWSRegion:         getEnvDefault("AWS_REGION", "us-east-1"),
		LogLevel:          getEnvDefault("LOG_LEVEL", "INFO"),
		StaleLockSecs:     900,
		MaxRetries:        3,
		RequestTimeout:    10,
		MaxWorkers:        4,
		PollWaitSeconds:   20,
		VisibilityTimeout: 120,
	}

	var err error
	if cfg.S3Bucket, err = require("S3_BUCKET"); err != nil {
		return nil, err
	}
	if cfg.RunsTable, err = require("DDB_RUNS_TABLE"); err != nil {
		return nil, err
	}
	if cfg.TileJobsTable, err = require("DDB_TILEJOBS_TABLE"); err != nil {
		return nil, err
	}
	if cfg.SecretsID, err = require("PIPELINE_SECRETS_ID"); err != nil {
		return nil, err
	}
	if cfg.VisionAPIURL, err = require("VISION_API_URL"); err != nil {
		return nil, err
	}
	if cfg.VisionAPISecretsID, err = require("VISION_API_SECRETS_ID"); err != nil {
		return nil, err
	}

	if v := os.Getenv("JOB_STALE_LOCK_SECONDS"); v != "" {
		if cfg.StaleLockSecs, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid JOB_STALE_LOCK_SECONDS: %w", err)
		}
	}
	if v := os.Getenv("PIPELINE_MAX_RETRIES"); v != "" {
		if cfg.MaxRetries, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid PIPELINE_MAX_RETRIES: %w", err)
		}
	}
	if v := os.Getenv("PIPELINE_REQUEST_TIMEOUT"); v != "" {
		if cfg.RequestTimeout, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid PIPELINE_REQUEST_TIMEOUT: %w", err)
		}
	}
	if v := os.Getenv("WORKER_MAX_WORKERS"); v != "" {
		if cfg.MaxWorkers, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid WORKER_MAX_WORKERS: %w", err)
		}
	}
	if v := os.Getenv("WORKER_POLL_WAIT_SECONDS"); v != "" {
		n, err2 := strconv.Atoi(v)
		if err2 != nil {
			return nil, fmt.Errorf("invalid WORKER_POLL_WAIT_SECONDS: %w", err2)
		}
		cfg.PollWaitSeconds = int32(n)
	}
	if v := os.Getenv("WORKER_VISIBILITY_TIMEOUT"); v != "" {
		n, err2 := strconv.Atoi(v)
		if err2 != nil {
			return nil, fmt.Errorf("invalid WORKER_VISIBILITY_TIMEOUT: %w", err2)
		}
		cfg.VisibilityTimeout = int32(n)
	}

	if requireQueueURL {
		if cfg.TileJobsQueueURL, err = require("TILE_JOBS_QUEUE_URL"); err != nil {
			return nil, err
		}
	} else {
		cfg.TileJobsQueueURL = os.Getenv("TILE_JOBS_QUEUE_URL")
	}

	return cfg, nil
}

func require(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is not set", name)
	}
	return v, nil
}

func getEnvDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
