// Package main implements the CLI driver that reads a CSV manifest from
// S3 and fans it out as tile job messages onto the worker queue.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/awsclients"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/checkpoint"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/config"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/ingest"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/schema"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("tile-ingest", flag.ExitOnError)

	bucket := fs.String("bucket", "", "S3 bucket containing the CSV manifest")
	key := fs.String("key", "", "S3 key for the CSV manifest")
	runIDFlag := fs.String("run-id", "", "Override run_id (optional)")
	sourceFlag := fs.String("source", "", "Imagery source if the CSV header is ambiguous (mapbox|google)")
	dryRun := fs.Bool("dry-run", false, "Validate the manifest without sending SQS messages")
	resume := fs.Bool("resume", false, "Resume from the last checkpointed row for this run")
	resumeURI := fs.String("resume-checkpoint", "", "s3:// URI for the resume checkpoint (defaults to in-memory, effectively disabling cross-invocation resume)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	if *bucket == "" || *key == "" {
		return fmt.Errorf("both --bucket and --key are required")
	}

	var sourceHint schema.ImagerySource
	switch *sourceFlag {
	case "":
	case "mapbox":
		sourceHint = schema.SourceMapbox
	case "google":
		sourceHint = schema.SourceGoogle
	default:
		return fmt.Errorf("invalid --source %q: must be mapbox or google", *sourceFlag)
	}

	cfg, err := config.Load(true)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}

	s3Client := awsclients.NewS3Client(s3.NewFromConfig(awsCfg))
	sqsClient := awsclients.NewSQSClient(sqs.NewFromConfig(awsCfg))
	ddbClient := awsclients.NewDynamoDBClient(dynamodb.NewFromConfig(awsCfg))
	stateStore := store.New(ddbClient, cfg.RunsTable, cfg.TileJobsTable)

	var checkpointStore checkpoint.Store
	if *resumeURI != "" {
		s3Store, err := checkpoint.NewS3Store(s3Client, *resumeURI)
		if err != nil {
			return fmt.Errorf("invalid --resume-checkpoint: %w", err)
		}
		checkpointStore = s3Store
	} else {
		checkpointStore = checkpoint.NewMemoryStore()
	}

	driver := &ingest.Driver{
		S3:         s3Client,
		SQS:        sqsClient,
		Store:      stateStore,
		Checkpoint: checkpointStore,
		QueueURL:   cfg.TileJobsQueueURL,
	}

	summary, err := driver.Run(ctx, ingest.Options{
		Bucket:     *bucket,
		Key:        *key,
		RunIDHint:  *runIDFlag,
		SourceHint: sourceHint,
		DryRun:     *dryRun,
		Resume:     *resume,
	})
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	fmt.Printf("run_id=%s source=%s total=%d elapsed=%.1fs\n",
		summary.RunID, summary.Source, summary.Total, summary.Elapsed.Seconds())
	return nil
}
