// Package processor implements the tile job orchestration state
// machine: claim, fetch-or-checkpoint-download, upload, classify,
// complete, and the failure path that records a terminal error and
// lets the queue's redelivery drive the next attempt.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/errcode"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/imagery"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/logging"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/metrics"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/objectstore"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/retry"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/schema"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/store"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/vision"
)

// minRemainingMSForVision is the floor of remaining processing budget
// required before starting the vision-model call. Chosen to leave
// enough buffer for the call's own request timeout to complete before
// an external deadline (queue visibility timeout, Lambda remaining
// time) would otherwise cut it off mid-flight.
const minRemainingMSForVision = 20_000

// Outcome describes how one tile job resolved.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
	OutcomeRetry     Outcome = "retry"
)

// Result is returned by Process for every tile job, whatever its
// outcome, so the worker coordinator can decide on ack/nack.
type Result struct {
	Outcome Outcome
	TileID  string
	Reason  string
}

// Clock abstracts time.Now so tests can control elapsed durations.
type Clock func() time.Time

// Processor wires together the state store, imagery fetchers, object
// storage, and vision client into the claim/checkpoint/retry protocol.
type Processor struct {
	Store         *store.Store
	Objects       *objectstore.Store
	Mapbox        *imagery.MapboxFetcher
	Google        *imagery.GoogleFetcher
	Vision        vision.Client
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
	StaleLockSecs int64
	Now           Clock
}

// Process runs one tile job through the full claim-to-completion state
// machine. remainingMS, if non-negative, is the caller's external
// deadline budget (queue visibility, Lambda remaining time); a value of
// -1 means no external deadline is tracked.
func (p *Processor) Process(ctx context.Context, msg schema.TileJobMessage, remainingMS int64) Result {
	tileID, err := msg.TileID()
	if err != nil {
		return Result{Outcome: OutcomeFailed, Reason: fmt.Sprintf("invalid message: %v", err)}
	}

	logCtx := []zap.Field{zap.String("run_id", msg.RunID), zap.String("tile_id", tileID)}
	p.Logger.Info("processing tile", logCtx...)

	now := p.now().Unix()

	var claimOutcome store.ClaimOutcome
	claimErr := func() error {
		var err error
		done := logging.TimedStage(p.Logger, "claim", logCtx...)
		defer done(&err)
		claimOutcome, err = p.Store.Claim(ctx, msg, tileID, now, p.StaleLockSecs)
		return err
	}()
	if claimErr != nil {
		return Result{Outcome: OutcomeFailed, TileID: tileID, Reason: fmt.Sprintf("claim: %v", claimErr)}
	}

	switch claimOutcome.Result {
	case schema.AlreadyCompleted:
		p.Logger.Info("job already completed, skipping", logCtx...)
		return Result{Outcome: OutcomeSkipped, TileID: tileID, Reason: "already_completed"}
	case schema.LockedByOther:
		p.Logger.Info("job locked by another worker, letting the queue retry", logCtx...)
		return Result{Outcome: OutcomeRetry, TileID: tileID, Reason: "locked_by_other"}
	}

	if p.Metrics != nil {
		p.Metrics.RecordClaimed()
	}

	attempt := claimOutcome.Attempt
	if attempt == 0 {
		attempt = 1
	}
	logCtx = append(logCtx, zap.Int64("attempt", attempt))

	started := p.now()

	imageBytes, contentType, _, _, err := p.obtainImage(ctx, msg, tileID, claimOutcome, logCtx)
	if err != nil {
		return p.fail(ctx, msg.RunID, tileID, err, logCtx)
	}

	if remainingMS >= 0 && remainingMS < minRemainingMSForVision {
		err := fmt.Errorf("only %dms remaining, aborting before vision call", remainingMS)
		return p.fail(ctx, msg.RunID, tileID, &deadlineErr{err}, logCtx)
	}

	var result vision.Result
	analyzeErr := func() error {
		var err error
		done := logging.TimedStage(p.Logger, "analyze", logCtx...)
		defer done(&err)
		result, err = p.Vision.Analyze(ctx, imageBytes, contentType)
		return err
	}()
	if analyzeErr != nil {
		return p.fail(ctx, msg.RunID, tileID, analyzeErr, logCtx)
	}

	durationMS := p.now().Sub(started).Milliseconds()

	completeErr := func() error {
		var err error
		done := logging.TimedStage(p.Logger, "complete", logCtx...)
		defer done(&err)
		err = p.Store.Complete(ctx, store.CompleteParams{
			RunID:         msg.RunID,
			TileID:        tileID,
			StatusAI:      string(result.Status),
			Reasoning:     result.Reasoning,
			OpenAIUsage:   result.Usage,
			DurationMS:    durationMS,
			FinishedEpoch: p.now().Unix(),
		})
		return err
	}()
	if completeErr != nil {
		return p.fail(ctx, msg.RunID, tileID, fmt.Errorf("complete: %w", completeErr), logCtx)
	}

	if err := p.Store.UpdateRunCounters(ctx, msg.RunID, 1, 0); err != nil {
		p.Logger.Error("failed to update run counters after completion", append(logCtx, zap.Error(err))...)
	}

	if p.Metrics != nil {
		p.Metrics.RecordCompleted()
		p.Metrics.RecordProcessingTime(p.now().Sub(started))
	}

	p.Logger.Info("tile processed successfully", append(logCtx, zap.String("status_ai", string(result.Status)))...)
	return Result{Outcome: OutcomeCompleted, TileID: tileID}
}

// obtainImage returns the image bytes for the job, downloading from an
// existing S3 checkpoint when the claim reported one, or fetching fresh
// from the upstream provider and uploading + checkpointing otherwise.
func (p *Processor) obtainImage(ctx context.Context, msg schema.TileJobMessage, tileID string, claim store.ClaimOutcome, logCtx []zap.Field) (data []byte, contentType, bucket, key string, err error) {
	if claim.Checkpoint != nil {
		p.Logger.Info("s3 checkpoint found, downloading instead of fetching", logCtx...)
		done := logging.TimedStage(p.Logger, "download_checkpoint", logCtx...)
		defer func() { done(&err) }()
		data, err = p.Objects.Download(ctx, claim.Checkpoint.Key)
		return data, contentTypeFor(msg), claim.Checkpoint.Bucket, claim.Checkpoint.Key, err
	}

	data, contentType, err = p.fetchImagery(ctx, msg, logCtx)
	if err != nil {
		return nil, "", "", "", err
	}
	if p.Metrics != nil {
		p.Metrics.RecordBytesFetched(int64(len(data)))
	}

	key = p.objectKey(msg)
	uploadErr := func() error {
		var err error
		done := logging.TimedStage(p.Logger, "upload", logCtx...)
		defer done(&err)
		err = p.Objects.Upload(ctx, key, data, contentType)
		return err
	}()
	if uploadErr != nil {
		return nil, "", "", "", uploadErr
	}
	if p.Metrics != nil {
		p.Metrics.RecordBytesUploaded(int64(len(data)))
	}
	bucket = p.Objects.Bucket()

	checkpointErr := func() error {
		var err error
		done := logging.TimedStage(p.Logger, "checkpoint", logCtx...)
		defer done(&err)
		err = p.Store.CheckpointS3(ctx, msg.RunID, tileID, bucket, key)
		return err
	}()
	if checkpointErr != nil {
		return nil, "", "", "", checkpointErr
	}

	return data, contentType, bucket, key, nil
}

func (p *Processor) fetchImagery(ctx context.Context, msg schema.TileJobMessage, logCtx []zap.Field) ([]byte, string, error) {
	var data []byte
	var contentType string
	err := func() error {
		var err error
		done := logging.TimedStage(p.Logger, "fetch", logCtx...)
		defer done(&err)

		switch msg.ImagerySource {
		case schema.SourceMapbox:
			data, contentType, err = p.Mapbox.Fetch(ctx, imagery.FetchOptions{Z: *msg.Z, X: *msg.X, Y: *msg.Y})
		case schema.SourceGoogle:
			data, contentType, err = p.Google.Fetch(ctx, imagery.FetchOptions{Lat: *msg.Lat, Lon: *msg.Lon, Zoom: msg.GetZoom()})
		default:
			err = fmt.Errorf("unknown imagery source %q", msg.ImagerySource)
		}
		return err
	}()
	return data, contentType, err
}

func contentTypeFor(msg schema.TileJobMessage) string {
	if msg.ImagerySource == schema.SourceMapbox {
		return "image/jpeg"
	}
	return "image/png"
}

func (p *Processor) objectKey(msg schema.TileJobMessage) string {
	switch msg.ImagerySource {
	case schema.SourceMapbox:
		return objectstore.MapboxTileKey(msg.RunID, *msg.Z, *msg.X, *msg.Y)
	default:
		return objectstore.GoogleCoordKey(msg.RunID, *msg.Lat, *msg.Lon, msg.GetZoom())
	}
}

func (p *Processor) fail(ctx context.Context, runID, tileID string, cause error, logCtx []zap.Field) Result {
	code := classify(cause)
	message := cause.Error()
	if len(message) > 500 {
		message = message[:500]
	}

	p.Logger.Error("tile processing failed", append(logCtx, zap.String("error_code", string(code)), zap.Error(cause))...)

	if err := p.Store.Fail(ctx, runID, tileID, string(code), message, p.now().Unix()); err != nil {
		p.Logger.Error("failed to record failure in the state store", append(logCtx, zap.Error(err))...)
		return Result{Outcome: OutcomeRetry, TileID: tileID, Reason: cause.Error()}
	}
	if err := p.Store.UpdateRunCounters(ctx, runID, 0, 1); err != nil {
		p.Logger.Error("failed to update run counters after failure", append(logCtx, zap.Error(err))...)
	}
	if p.Metrics != nil {
		p.Metrics.RecordFailed()
	}

	return Result{Outcome: OutcomeFailed, TileID: tileID, Reason: cause.Error()}
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

type deadlineErr struct{ err error }

func (d *deadlineErr) Error() string { return d.err.Error() }
func (d *deadlineErr) Unwrap() error { return d.err }

// classify maps a processing error to the closed error taxonomy code
// recorded on the failed TileJob row.
func classify(err error) errcode.Code {
	var fetchErr *imagery.FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Code
	}
	var storeErr *objectstore.StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Code
	}
	var analysisErr *vision.AnalysisError
	if errors.As(err, &analysisErr) {
		return vision.Code(err)
	}
	var dl *deadlineErr
	if errors.As(err, &dl) {
		return errcode.DeadlineExceeded
	}
	var re *retry.RetryExhaustedError
	if errors.As(err, &re) {
		return errcode.RetryExhausted
	}
	return errcode.UnknownError
}
