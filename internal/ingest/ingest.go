// Package ingest reads a CSV manifest of coordinates from S3, creates
// the run row, and fans the rows out as batched SQS tile job messages.
package ingest

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	json "github.com/goccy/go-json"

	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/awsclients"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/checkpoint"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/schema"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/store"
)

// sendBatchSize matches the SQS SendMessageBatch API limit.
const sendBatchSize = 10

// Options configures one ingest run.
type Options struct {
	Bucket     string
	Key        string
	RunIDHint  string
	SourceHint schema.ImagerySource
	DryRun     bool
	Resume     bool
}

// Summary is printed to the operator at the end of a run.
type Summary struct {
	RunID   string
	Source  schema.ImagerySource
	Total   int
	Elapsed time.Duration
}

// Driver wires the S3 CSV reader, the state store, the checkpoint store,
// and the SQS sender into one ingest pass.
type Driver struct {
	S3         awsclients.S3Client
	SQS        awsclients.SQSClient
	Store      *store.Store
	Checkpoint checkpoint.Store
	QueueURL   string
}

// Run executes one ingest pass end to end: detect source, create the
// run row, stream rows into batched SQS sends, then record the final
// tile count.
func (d *Driver) Run(ctx context.Context, opts Options) (Summary, error) {
	start := time.Now()

	body, etag, err := d.getObject(ctx, opts.Bucket, opts.Key)
	if err != nil {
		return Summary{}, fmt.Errorf("read manifest: %w", err)
	}
	defer body.Close()

	runID := opts.RunIDHint
	if runID == "" {
		runID = computeRunID(opts.Bucket, opts.Key, etag)
	}

	if !opts.DryRun {
		_, err := d.Store.SafeCreateRun(ctx, schema.Run{
			RunID:          runID,
			Status:         schema.RunCreated,
			SourceBucket:   opts.Bucket,
			SourceKey:      opts.Key,
			CreatedAtEpoch: time.Now().Unix(),
		})
		if err != nil {
			return Summary{}, fmt.Errorf("create run: %w", err)
		}
	}

	resumeFrom := int64(0)
	if opts.Resume && d.Checkpoint != nil {
		state, err := d.Checkpoint.Load(ctx)
		if err != nil {
			return Summary{}, fmt.Errorf("load checkpoint: %w", err)
		}
		if state.RunID == runID {
			resumeFrom = state.LastRowIndex
		}
	}

	reader := csv.NewReader(stripBOM(body))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return Summary{}, fmt.Errorf("read csv header: %w", err)
	}

	source, fieldnames, headerIsData := detectSource(header, opts.SourceHint)
	if source == "" {
		return Summary{}, fmt.Errorf("unable to detect imagery source from header; pass an explicit source hint")
	}

	total := 0
	batch := make([]sqstypes.SendMessageBatchRequestEntry, 0, sendBatchSize)

	processRow := func(rowIndex int64, row []string) error {
		if rowIndex < resumeFrom {
			return nil
		}
		if isBlankRow(row) {
			return nil
		}

		msg, err := rowToMessage(row, fieldnames, runID, source, opts.Bucket, opts.Key)
		if err != nil {
			return fmt.Errorf("row %d: %w", rowIndex, err)
		}

		total++
		bodyBytes, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("row %d: encode message: %w", rowIndex, err)
		}

		id := strconv.FormatInt(rowIndex, 10)
		bodyStr := string(bodyBytes)
		batch = append(batch, sqstypes.SendMessageBatchRequestEntry{
			Id:          &id,
			MessageBody: &bodyStr,
		})

		if len(batch) == sendBatchSize {
			if err := d.flushBatch(ctx, opts.DryRun, batch); err != nil {
				return err
			}
			batch = batch[:0]
			if opts.Resume && d.Checkpoint != nil && !opts.DryRun {
				_ = d.Checkpoint.Save(ctx, checkpoint.State{RunID: runID, LastRowIndex: rowIndex})
			}
		}
		return nil
	}

	var rowIndex int64
	if headerIsData {
		if err := processRow(rowIndex, header); err != nil {
			return Summary{}, err
		}
		rowIndex++
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Summary{}, fmt.Errorf("read csv row %d: %w", rowIndex, err)
		}
		if err := processRow(rowIndex, row); err != nil {
			return Summary{}, err
		}
		rowIndex++
	}

	if len(batch) > 0 {
		if err := d.flushBatch(ctx, opts.DryRun, batch); err != nil {
			return Summary{}, err
		}
	}

	if !opts.DryRun {
		if err := d.Store.SetTotalTiles(ctx, runID, int64(total)); err != nil {
			return Summary{}, fmt.Errorf("set total tiles: %w", err)
		}
	}

	return Summary{
		RunID:   runID,
		Source:  source,
		Total:   total,
		Elapsed: time.Since(start),
	}, nil
}

func (d *Driver) flushBatch(ctx context.Context, dryRun bool, batch []sqstypes.SendMessageBatchRequestEntry) error {
	if dryRun || len(batch) == 0 {
		return nil
	}
	out, err := d.SQS.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
		QueueUrl: &d.QueueURL,
		Entries:  batch,
	})
	if err != nil {
		return fmt.Errorf("send message batch: %w", err)
	}
	if len(out.Failed) > 0 {
		return fmt.Errorf("sqs batch send failed: %d entries", len(out.Failed))
	}
	return nil
}

func (d *Driver) getObject(ctx context.Context, bucket, key string) (io.ReadCloser, string, error) {
	head, err := d.S3.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &bucket, Key: &key})
	etag := ""
	if err == nil && head.ETag != nil {
		etag = strings.Trim(*head.ETag, `"`)
	}

	resp, err := d.S3.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, "", err
	}
	return resp.Body, etag, nil
}

// computeRunID derives a deterministic run identifier from the source
// object's location and content version, so re-ingesting the exact same
// object (by ETag) is idempotent.
func computeRunID(bucket, key, etag string) string {
	raw := fmt.Sprintf("%s:%s:%s", bucket, key, etag)
	sum := sha1.Sum([]byte(raw))
	return fmt.Sprintf("%x", sum)[:12]
}

// stripBOM wraps an io.Reader, dropping a leading UTF-8 BOM if present,
// matching the original driver's utf-8-sig decoding.
func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	bom, err := br.Peek(3)
	if err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		_, _ = br.Discard(3)
	}
	return br
}

// detectSource inspects the header row for the lat/lon or z/x/y column
// families. headerIsData reports that no known header was recognized
// and the caller's source hint applies, treating the first row as data.
func detectSource(header []string, hint schema.ImagerySource) (schema.ImagerySource, map[string]int, bool) {
	lowered := make([]string, len(header))
	for i, v := range header {
		lowered[i] = strings.ToLower(strings.TrimSpace(v))
	}
	present := make(map[string]bool, len(lowered))
	for _, v := range lowered {
		present[v] = true
	}

	if present["lat"] && present["lon"] {
		return schema.SourceGoogle, fieldIndex(lowered), false
	}
	if present["z"] && present["x"] && present["y"] {
		return schema.SourceMapbox, fieldIndex(lowered), false
	}

	return hint, nil, hint != ""
}

func fieldIndex(fields []string) map[string]int {
	idx := make(map[string]int, len(fields))
	for i, f := range fields {
		idx[f] = i
	}
	return idx
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func rowToMessage(row []string, fieldnames map[string]int, runID string, source schema.ImagerySource, bucket, key string) (schema.TileJobMessage, error) {
	msg := schema.TileJobMessage{
		RunID:         runID,
		ImagerySource: source,
		Source:        schema.SourceRef{Bucket: bucket, Key: key},
	}

	get := func(name string) (string, bool) {
		if fieldnames != nil {
			i, ok := fieldnames[name]
			if !ok || i >= len(row) {
				return "", false
			}
			return strings.TrimSpace(row[i]), true
		}
		return "", false
	}

	switch source {
	case schema.SourceMapbox:
		z, x, y, region, err := parseMapboxRow(row, get)
		if err != nil {
			return schema.TileJobMessage{}, err
		}
		msg.Z, msg.X, msg.Y = &z, &x, &y
		if region != "" {
			msg.Region = &region
		}
	case schema.SourceGoogle:
		lat, lon, zoom, err := parseGoogleRow(row, get)
		if err != nil {
			return schema.TileJobMessage{}, err
		}
		msg.Lat, msg.Lon = &lat, &lon
		if zoom != nil {
			msg.Zoom = zoom
		}
	default:
		return schema.TileJobMessage{}, fmt.Errorf("unknown imagery source %q", source)
	}

	if err := msg.ValidateSourceFields(); err != nil {
		return schema.TileJobMessage{}, err
	}
	return msg, nil
}

func parseMapboxRow(row []string, get func(string) (string, bool)) (z, x, y int, region string, err error) {
	if v, ok := get("z"); ok {
		region, _ = get("region")
		z, err = strconv.Atoi(v)
		if err != nil {
			return 0, 0, 0, "", fmt.Errorf("invalid z: %w", err)
		}
		xv, _ := get("x")
		yv, _ := get("y")
		x, err = strconv.Atoi(xv)
		if err != nil {
			return 0, 0, 0, "", fmt.Errorf("invalid x: %w", err)
		}
		y, err = strconv.Atoi(yv)
		if err != nil {
			return 0, 0, 0, "", fmt.Errorf("invalid y: %w", err)
		}
		return z, x, y, region, nil
	}

	if len(row) < 3 {
		return 0, 0, 0, "", fmt.Errorf("mapbox CSV rows must have z,x,y (and optional region)")
	}
	if z, err = strconv.Atoi(strings.TrimSpace(row[0])); err != nil {
		return 0, 0, 0, "", fmt.Errorf("invalid z: %w", err)
	}
	if x, err = strconv.Atoi(strings.TrimSpace(row[1])); err != nil {
		return 0, 0, 0, "", fmt.Errorf("invalid x: %w", err)
	}
	if y, err = strconv.Atoi(strings.TrimSpace(row[2])); err != nil {
		return 0, 0, 0, "", fmt.Errorf("invalid y: %w", err)
	}
	if len(row) > 3 {
		region = strings.TrimSpace(row[3])
	}
	return z, x, y, region, nil
}

func parseGoogleRow(row []string, get func(string) (string, bool)) (lat, lon float64, zoom *int, err error) {
	if v, ok := get("lat"); ok {
		lat, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, 0, nil, fmt.Errorf("invalid lat: %w", err)
		}
		lonv, _ := get("lon")
		lon, err = strconv.ParseFloat(lonv, 64)
		if err != nil {
			return 0, 0, nil, fmt.Errorf("invalid lon: %w", err)
		}
		if zv, ok := get("zoom"); ok && zv != "" {
			z, err := strconv.Atoi(zv)
			if err != nil {
				return 0, 0, nil, fmt.Errorf("invalid zoom: %w", err)
			}
			zoom = &z
		}
		return lat, lon, zoom, nil
	}

	if len(row) < 2 {
		return 0, 0, nil, fmt.Errorf("google CSV rows must have lat,lon (and optional zoom)")
	}
	if lat, err = strconv.ParseFloat(strings.TrimSpace(row[0]), 64); err != nil {
		return 0, 0, nil, fmt.Errorf("invalid lat: %w", err)
	}
	if lon, err = strconv.ParseFloat(strings.TrimSpace(row[1]), 64); err != nil {
		return 0, 0, nil, fmt.Errorf("invalid lon: %w", err)
	}
	if len(row) > 2 && strings.TrimSpace(row[2]) != "" {
		z, err := strconv.Atoi(strings.TrimSpace(row[2]))
		if err != nil {
			return 0, 0, nil, fmt.Errorf("invalid zoom: %w", err)
		}
		zoom = &z
	}
	return lat, lon, zoom, nil
}
