// Package metrics collects tile-pipeline counters and exposes both a
// human/JSON summary report and a Prometheus scrape endpoint.
package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks the lifecycle counters for one worker process.
type Metrics struct {
	mu sync.RWMutex

	tilesClaimed   int64
	tilesCompleted int64
	tilesFailed    int64
	tilesSkipped   int64
	bytesFetched   int64
	bytesUploaded  int64

	processingTime time.Duration
	startTime      time.Time

	prom *promCollectors
}

type promCollectors struct {
	claimed   prometheus.Counter
	completed prometheus.Counter
	failed    prometheus.Counter
	skipped   prometheus.Counter
}

// New creates a Metrics instance. If registry is non-nil, counters are
// also registered for Prometheus scraping.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{startTime: time.Now()}
	if registry != nil {
		m.prom = &promCollectors{
			claimed:   prometheus.NewCounter(prometheus.CounterOpts{Name: "tile_jobs_claimed_total"}),
			completed: prometheus.NewCounter(prometheus.CounterOpts{Name: "tile_jobs_completed_total"}),
			failed:    prometheus.NewCounter(prometheus.CounterOpts{Name: "tile_jobs_failed_total"}),
			skipped:   prometheus.NewCounter(prometheus.CounterOpts{Name: "tile_jobs_skipped_total"}),
		}
		registry.MustRegister(m.prom.claimed, m.prom.completed, m.prom.failed, m.prom.skipped)
	}
	return m
}

func (m *Metrics) RecordClaimed() {
	atomic.AddInt64(&m.tilesClaimed, 1)
	if m.prom != nil {
		m.prom.claimed.Inc()
	}
}

func (m *Metrics) RecordCompleted() {
	atomic.AddInt64(&m.tilesCompleted, 1)
	if m.prom != nil {
		m.prom.completed.Inc()
	}
}

func (m *Metrics) RecordFailed() {
	atomic.AddInt64(&m.tilesFailed, 1)
	if m.prom != nil {
		m.prom.failed.Inc()
	}
}

func (m *Metrics) RecordSkipped() {
	atomic.AddInt64(&m.tilesSkipped, 1)
	if m.prom != nil {
		m.prom.skipped.Inc()
	}
}

func (m *Metrics) RecordBytesFetched(n int64)  { atomic.AddInt64(&m.bytesFetched, n) }
func (m *Metrics) RecordBytesUploaded(n int64) { atomic.AddInt64(&m.bytesUploaded, n) }

func (m *Metrics) RecordProcessingTime(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processingTime += d
}

// Report is the final summary, JSON-marshalable with a human duration.
type Report struct {
	StartTime      time.Time     `json:"startTime"`
	EndTime        time.Time     `json:"endTime"`
	TilesClaimed   int64         `json:"tilesClaimed"`
	TilesCompleted int64         `json:"tilesCompleted"`
	TilesFailed    int64         `json:"tilesFailed"`
	TilesSkipped   int64         `json:"tilesSkipped"`
	BytesFetched   int64         `json:"bytesFetched"`
	BytesUploaded  int64         `json:"bytesUploaded"`
	Duration       time.Duration `json:"duration"`
}

// GenerateReport snapshots the current counters into a Report.
func (m *Metrics) GenerateReport() Report {
	end := time.Now()
	return Report{
		StartTime:      m.startTime,
		EndTime:        end,
		TilesClaimed:   atomic.LoadInt64(&m.tilesClaimed),
		TilesCompleted: atomic.LoadInt64(&m.tilesCompleted),
		TilesFailed:    atomic.LoadInt64(&m.tilesFailed),
		TilesSkipped:   atomic.LoadInt64(&m.tilesSkipped),
		BytesFetched:   atomic.LoadInt64(&m.bytesFetched),
		BytesUploaded:  atomic.LoadInt64(&m.bytesUploaded),
		Duration:       end.Sub(m.startTime),
	}
}

// MarshalJSON renders Duration as its String() form for readability.
func (r Report) MarshalJSON() ([]byte, error) {
	type Alias Report
	return json.Marshal(&struct {
		Alias
		Duration string `json:"duration"`
	}{
		Alias:    Alias(r),
		Duration: r.Duration.String(),
	})
}

func (r Report) String() string {
	return fmt.Sprintf(
		"tiles claimed=%d completed=%d failed=%d skipped=%d over %s",
		r.TilesClaimed, r.TilesCompleted, r.TilesFailed, r.TilesSkipped, r.Duration,
	)
}
