// Package main wires the tile worker's dependencies and runs the SQS
// worker pool until signaled to stop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/awsclients"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/config"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/imagery"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/logging"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/metrics"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/objectstore"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/processor"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/store"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/vision"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(true)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}

	ddbClient := awsclients.NewDynamoDBClient(dynamodb.NewFromConfig(awsCfg))
	s3Client := awsclients.NewS3Client(s3.NewFromConfig(awsCfg))
	sqsClient := awsclients.NewSQSClient(sqs.NewFromConfig(awsCfg))
	secretsClient := awsclients.NewSecretsManagerClient(secretsmanager.NewFromConfig(awsCfg))

	httpClient := &http.Client{Timeout: time.Duration(cfg.RequestTimeout) * time.Second}
	secretCache := imagery.NewSecretCache(secretsClient, 900)
	fetchCfg := imagery.Config{MaxRetries: cfg.MaxRetries, Timeout: time.Duration(cfg.RequestTimeout) * time.Second}

	stateStore := store.New(ddbClient, cfg.RunsTable, cfg.TileJobsTable)
	objects := objectstore.New(s3Client, cfg.S3Bucket, cfg.AWSRegion)
	mapbox := imagery.NewMapboxFetcher(httpClient, secretCache, cfg.SecretsID, fetchCfg)
	google := imagery.NewGoogleFetcher(httpClient, secretCache, cfg.SecretsID, fetchCfg)
	visionClient := vision.NewHTTPVisionClient(httpClient, secretCache, cfg.VisionAPISecretsID, cfg.VisionAPIURL, cfg.MaxRetries, time.Duration(cfg.RequestTimeout)*time.Second)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	go serveMetrics(logger, registry)

	proc := &processor.Processor{
		Store:         stateStore,
		Objects:       objects,
		Mapbox:        mapbox,
		Google:        google,
		Vision:        visionClient,
		Logger:        logger,
		Metrics:       m,
		StaleLockSecs: cfg.StaleLockSecs,
	}

	coord := worker.NewCoordinator(cfg.TileJobsQueueURL, sqsClient, proc, logger, m, cfg.MaxWorkers, cfg.PollWaitSeconds, cfg.VisibilityTimeout)

	logger.Info("tile worker starting",
		zap.String("queue_url", cfg.TileJobsQueueURL),
		zap.Int("max_workers", cfg.MaxWorkers),
	)

	if err := coord.Run(ctx); err != nil {
		return fmt.Errorf("worker pool exited with error: %w", err)
	}

	logger.Info("tile worker stopped")
	return nil
}

// serveMetrics exposes the Prometheus registry and a liveness probe over
// HTTP until the process exits; a bind failure is logged, not fatal,
// since this endpoint is observability, not a correctness requirement.
func serveMetrics(logger *zap.Logger, registry *prometheus.Registry) {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := ":9090"
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}
