// Package schema defines the wire shapes exchanged between the ingest
// driver and the tile worker, and the canonical identity derivation that
// every tile job is keyed on.
package schema

import (
	"fmt"
)

// ImagerySource selects which upstream provider a TileJobMessage targets.
type ImagerySource string

const (
	SourceMapbox ImagerySource = "tile-provider"
	SourceGoogle ImagerySource = "coord-provider"
)

// DefaultGoogleZoom is used when a coord-provider message omits zoom.
const DefaultGoogleZoom = 18

// SourceRef records where a tile job's manifest entry came from.
type SourceRef struct {
	Bucket string `json:"bucket" validate:"required"`
	Key    string `json:"key" validate:"required"`
}

// TileJobMessage is the transient body of one queue delivery. The
// coordinate group matching ImagerySource must be populated; fields of the
// other group are not checked.
type TileJobMessage struct {
	RunID         string        `json:"run_id" validate:"required"`
	ImagerySource ImagerySource `json:"imagery_source" validate:"required,oneof=tile-provider coord-provider"`
	Source        SourceRef     `json:"source" validate:"required"`

	// Mapbox-style tile coordinates.
	Z      *int    `json:"z,omitempty" validate:"omitempty,min=0,max=22"`
	X      *int    `json:"x,omitempty" validate:"omitempty,min=0"`
	Y      *int    `json:"y,omitempty" validate:"omitempty,min=0"`
	Region *string `json:"region,omitempty"`

	// Google-style coordinates.
	Lat  *float64 `json:"lat,omitempty" validate:"omitempty,min=-90,max=90"`
	Lon  *float64 `json:"lon,omitempty" validate:"omitempty,min=-180,max=180"`
	Zoom *int     `json:"zoom,omitempty" validate:"omitempty,min=0,max=22"`
}

// ValidateSourceFields checks that the coordinate fields present match
// ImagerySource, mirroring the cross-field validation the JSON tags alone
// cannot express.
func (m TileJobMessage) ValidateSourceFields() error {
	switch m.ImagerySource {
	case SourceMapbox:
		if m.Z == nil || m.X == nil || m.Y == nil {
			return fmt.Errorf("tile-provider message requires z, x, and y")
		}
	case SourceGoogle:
		if m.Lat == nil || m.Lon == nil {
			return fmt.Errorf("coord-provider message requires lat and lon")
		}
	default:
		return fmt.Errorf("unknown imagery source %q", m.ImagerySource)
	}
	return nil
}

// GetZoom returns the effective zoom level, defaulting coord-provider
// messages to DefaultGoogleZoom when omitted.
func (m TileJobMessage) GetZoom() int {
	if m.Zoom != nil {
		return *m.Zoom
	}
	return DefaultGoogleZoom
}

// TileID recomputes the canonical tile identity from the message's
// coordinates. The identity is never trusted from the message body
// directly; it is always rederived here.
func (m TileJobMessage) TileID() (string, error) {
	switch m.ImagerySource {
	case SourceMapbox:
		if m.Z == nil || m.X == nil || m.Y == nil {
			return "", fmt.Errorf("tile-provider message missing z/x/y")
		}
		return fmt.Sprintf("%d/%d/%d", *m.Z, *m.X, *m.Y), nil
	case SourceGoogle:
		if m.Lat == nil || m.Lon == nil {
			return "", fmt.Errorf("coord-provider message missing lat/lon")
		}
		return TileIDForCoords(*m.Lat, *m.Lon, m.GetZoom()), nil
	default:
		return "", fmt.Errorf("unknown imagery source %q", m.ImagerySource)
	}
}

// TileIDForCoords formats a coord-provider tile identity, rounding each
// coordinate to six decimal places with round-half-to-even, matching
// Python's default float formatting.
func TileIDForCoords(lat, lon float64, zoom int) string {
	return fmt.Sprintf("coord:%s,%s,%d", formatCoord(lat), formatCoord(lon), zoom)
}

func formatCoord(v float64) string {
	return fmt.Sprintf("%.6f", v)
}

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	RunCreated   RunStatus = "CREATED"
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// JobStatus is the lifecycle state of a TileJob. PENDING has no explicit
// row representation; its absence is the PENDING state.
type JobStatus string

const (
	JobProcessing JobStatus = "PROCESSING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
)

// ClaimResult is the outcome of a claim attempt.
type ClaimResult string

const (
	Claimed          ClaimResult = "CLAIMED"
	AlreadyCompleted ClaimResult = "ALREADY_COMPLETED"
	LockedByOther    ClaimResult = "LOCKED_BY_OTHER"
)

// Run is the durable record of one ingest manifest's lifecycle.
type Run struct {
	RunID           string
	Status          RunStatus
	TotalTiles      int64
	CompletedTiles  int64
	FailedTiles     int64
	SourceBucket    string
	SourceKey       string
	CreatedAtEpoch  int64
	FinishedAtEpoch *int64
}

// S3Checkpoint is the durable record that imagery has been uploaded for a
// tile job, letting a retry skip straight to the vision-model call.
type S3Checkpoint struct {
	Bucket string
	Key    string
}

// TileJob is the durable record of one coordinate's processing lifecycle.
type TileJob struct {
	RunID    string
	TileID   string
	Status   JobStatus
	Attempts int64

	LockUntilEpoch     *int64
	StartedAtEpoch     *int64
	LastClaimedAtEpoch *int64
	FinishedAtEpoch    *int64

	ImagerySource ImagerySource
	Z, X, Y       *int
	Region        *string
	Lat, Lon      *float64
	Zoom          *int

	Checkpoint *S3Checkpoint

	StatusAI     *string
	Reasoning    *string
	OpenAIUsage  map[string]any
	DurationMS   *int64

	ErrorCode    *string
	ErrorMessage *string
}
