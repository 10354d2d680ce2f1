// Package worker implements the SQS-backed worker pool that drains tile
// job messages and drives them through the processor state machine. It
// owns acknowledgement: completed and skipped jobs delete the message,
// poison messages delete without processing, and every other outcome
// leaves the message in place so the queue's native visibility timeout
// and redelivery policy takes over.
package worker

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/awsclients"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/metrics"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/processor"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/schema"
)

// WorkerStatus tracks one worker goroutine's progress and last error for
// monitoring. Fields are ordered largest-to-smallest for alignment.
type WorkerStatus struct {
	LastErrorTime  time.Time
	StartTime      time.Time
	LastActive     time.Time
	LastError      error
	CurrentTileID  string
	TilesProcessed int64
	ID             int
}

// Coordinator runs a bounded pool of workers, each long-polling the tile
// job queue and handing received messages to a Processor.
type Coordinator struct {
	QueueURL          string
	SQS               awsclients.SQSClient
	Processor         *processor.Processor
	Logger            *zap.Logger
	Metrics           *metrics.Metrics
	MaxWorkers        int
	PollWaitSeconds   int32
	VisibilityTimeout int32

	workerStatus map[int]*WorkerStatus
	statusMu     sync.RWMutex
}

// NewCoordinator builds a Coordinator with the given dependencies.
func NewCoordinator(queueURL string, client awsclients.SQSClient, proc *processor.Processor, logger *zap.Logger, m *metrics.Metrics, maxWorkers int, pollWaitSeconds, visibilityTimeout int32) *Coordinator {
	return &Coordinator{
		QueueURL:          queueURL,
		SQS:               client,
		Processor:         proc,
		Logger:            logger,
		Metrics:           m,
		MaxWorkers:        maxWorkers,
		PollWaitSeconds:   pollWaitSeconds,
		VisibilityTimeout: visibilityTimeout,
		workerStatus:      make(map[int]*WorkerStatus),
	}
}

// Run starts the worker pool and blocks until the context is cancelled
// or an interrupt/kill signal is received, then waits for in-flight
// workers to return.
func (c *Coordinator) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, os.Kill)
	defer cancel()

	go c.reportProgress(ctx)

	var wg sync.WaitGroup
	for i := 0; i < c.MaxWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.initWorker(workerID)
			c.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	return nil
}

func (c *Coordinator) initWorker(id int) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.workerStatus[id] = &WorkerStatus{ID: id, StartTime: time.Now()}
}

func (c *Coordinator) updateWorkerStatus(id int, fn func(*WorkerStatus)) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	if status, ok := c.workerStatus[id]; ok {
		fn(status)
		status.LastActive = time.Now()
	}
}

func (c *Coordinator) reportProgress(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.statusMu.RLock()
			var totalProcessed int64
			activeWorkers := 0
			for _, status := range c.workerStatus {
				if time.Since(status.LastActive) < 10*time.Second {
					activeWorkers++
				}
				totalProcessed += status.TilesProcessed
			}
			c.statusMu.RUnlock()

			c.Logger.Info("worker pool progress",
				zap.Int64("tiles_processed", totalProcessed),
				zap.Int("active_workers", activeWorkers),
			)
		case <-ctx.Done():
			return
		}
	}
}

// receiveBackoff is the pause after a ReceiveMessage error, to avoid a
// hot loop against a degraded queue.
const receiveBackoff = 2 * time.Second

// worker long-polls the queue until ctx is cancelled, handling one
// message at a time.
func (c *Coordinator) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		out, err := c.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            &c.QueueURL,
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     c.PollWaitSeconds,
			VisibilityTimeout:   c.VisibilityTimeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.recordError(id, err)
			c.Logger.Warn("receive message failed", zap.Int("worker_id", id), zap.Error(err))
			select {
			case <-time.After(receiveBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		receivedAt := time.Now()
		for _, msg := range out.Messages {
			c.handleMessage(ctx, id, msg, receivedAt)
		}
	}
}

func (c *Coordinator) handleMessage(ctx context.Context, id int, msg sqs.Message, receivedAt time.Time) {
	var body []byte
	if msg.Body != nil {
		body = []byte(*msg.Body)
	}

	job, err := schema.ParseMessage(body)
	if err != nil {
		c.Logger.Error("poison message, acknowledging without processing",
			zap.Int("worker_id", id), zap.Error(err))
		c.ackMessage(ctx, id, msg)
		if c.Metrics != nil {
			c.Metrics.RecordSkipped()
		}
		return
	}

	tileID, _ := job.TileID()
	c.updateWorkerStatus(id, func(s *WorkerStatus) {
		s.CurrentTileID = tileID
	})

	deadline := receivedAt.Add(time.Duration(c.VisibilityTimeout) * time.Second)
	remainingMS := time.Until(deadline).Milliseconds()

	result := c.Processor.Process(ctx, job, remainingMS)

	if shouldAck(result.Outcome) {
		c.ackMessage(ctx, id, msg)
		c.updateWorkerStatus(id, func(s *WorkerStatus) {
			s.TilesProcessed++
		})
		return
	}

	switch result.Outcome {
	case processor.OutcomeFailed:
		c.Logger.Warn("tile job failed, leaving message for redelivery/DLQ",
			zap.Int("worker_id", id), zap.String("tile_id", result.TileID), zap.String("reason", result.Reason))
	case processor.OutcomeRetry:
		c.Logger.Info("tile job locked by another worker, leaving message for redelivery",
			zap.Int("worker_id", id), zap.String("tile_id", result.TileID))
	}
}

// shouldAck reports whether a processing outcome should delete the queue
// message. COMPLETED and ALREADY_COMPLETED (skipped) are terminal and
// durable; FAILED and LOCKED_BY_OTHER both leave the message for the
// queue's own redelivery and dead-letter policy to drive further
// attempts, per the lifecycle engine's ack/nack contract.
func shouldAck(outcome processor.Outcome) bool {
	return outcome == processor.OutcomeCompleted || outcome == processor.OutcomeSkipped
}

func (c *Coordinator) ackMessage(ctx context.Context, id int, msg sqs.Message) {
	_, err := c.SQS.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &c.QueueURL,
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		c.recordError(id, err)
		c.Logger.Error("failed to delete message", zap.Int("worker_id", id), zap.Error(err))
	}
}

func (c *Coordinator) recordError(id int, err error) {
	c.updateWorkerStatus(id, func(s *WorkerStatus) {
		s.LastError = err
		s.LastErrorTime = time.Now()
	})
}
