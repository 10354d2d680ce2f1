// Package objectstore derives deterministic S3 keys for tile imagery
// and wraps upload/download behind internal/awsclients.S3Client.
package objectstore

import (
	"fmt"
)

// MapboxTileKey returns the deterministic S3 key for a Mapbox tile
// image under a run's prefix.
func MapboxTileKey(runID string, z, x, y int) string {
	return fmt.Sprintf("runs/%s/tiles/z=%d/x=%d/y=%d.jpg", runID, z, x, y)
}

// GoogleCoordKey returns the deterministic S3 key for a Google Static
// Maps image under a run's prefix. lat/lon are rounded round-half-to-even
// to six decimal places, matching the coord-provider tile ID formatting.
func GoogleCoordKey(runID string, lat, lon float64, zoom int) string {
	return fmt.Sprintf("runs/%s/coords/lat=%s/lon=%s/z=%d.png", runID, formatCoord(lat), formatCoord(lon), zoom)
}

func formatCoord(v float64) string {
	return fmt.Sprintf("%.6f", v)
}

// URL builds the virtual-hosted-style S3 URL for a bucket/key, used in
// run summaries and logs.
func URL(bucket, key, region string) string {
	if region == "" {
		region = "us-east-1"
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, key)
}
