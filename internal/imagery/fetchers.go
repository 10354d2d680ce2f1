// Package imagery fetches satellite tile imagery from Mapbox and Google
// Maps Static API, retrying transient failures through internal/retry.
package imagery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/errcode"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/retry"
)

const (
	mapboxTileset  = "mapbox.satellite"
	mapboxFormat   = "jpg"
	googleBaseURL  = "https://maps.googleapis.com/maps/api/staticmap"
	mapboxTokenKey = "MAPBOX_TOKEN"
	googleKeyKey   = "GOOGLE_MAPS_API_KEY"
)

// FetchError is raised when an imagery fetch fails after exhausting
// retries or hitting a non-retryable status.
type FetchError struct {
	Code errcode.Code
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("imagery fetch failed [%s]: %v", e.Code, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher retrieves raw image bytes for a tile and reports the content
// type S3 should store it under.
type Fetcher interface {
	Fetch(ctx context.Context, opts FetchOptions) (data []byte, contentType string, err error)
}

// FetchOptions carries the coordinates needed by either fetcher; only
// the fields relevant to the concrete Fetcher are read.
type FetchOptions struct {
	Z, X, Y  int
	Lat, Lon float64
	Zoom     int
}

// Config controls retry and timeout behavior shared by both fetchers.
type Config struct {
	MaxRetries int
	Timeout    time.Duration
}

// MapboxFetcher fetches Mapbox satellite tiles by z/x/y.
type MapboxFetcher struct {
	http     *http.Client
	secrets  *SecretCache
	secretID string
	cfg      Config
}

// NewMapboxFetcher builds a MapboxFetcher resolving its access token
// from secretID via cache.
func NewMapboxFetcher(httpClient *http.Client, cache *SecretCache, secretID string, cfg Config) *MapboxFetcher {
	return &MapboxFetcher{http: httpClient, secrets: cache, secretID: secretID, cfg: cfg}
}

// Fetch downloads a Mapbox satellite tile as JPEG bytes.
func (f *MapboxFetcher) Fetch(ctx context.Context, opts FetchOptions) ([]byte, string, error) {
	token, err := f.secrets.Get(ctx, f.secretID, mapboxTokenKey)
	if err != nil {
		return nil, "", &FetchError{Code: errcode.MapboxClientError, Err: err}
	}

	u := fmt.Sprintf("https://api.mapbox.com/v4/%s/%d/%d/%d.%s?access_token=%s",
		mapboxTileset, opts.Z, opts.X, opts.Y, mapboxFormat, url.QueryEscape(token))

	data, err := fetchWithRetry(ctx, f.http, u, errcode.Mapbox, f.cfg)
	if err != nil {
		return nil, "", err
	}
	return data, "image/jpeg", nil
}

// GoogleFetcher fetches Google Maps Static API satellite images by
// lat/lon/zoom.
type GoogleFetcher struct {
	http     *http.Client
	secrets  *SecretCache
	secretID string
	cfg      Config
}

// NewGoogleFetcher builds a GoogleFetcher resolving its API key from
// secretID via cache.
func NewGoogleFetcher(httpClient *http.Client, cache *SecretCache, secretID string, cfg Config) *GoogleFetcher {
	return &GoogleFetcher{http: httpClient, secrets: cache, secretID: secretID, cfg: cfg}
}

// Fetch downloads a Google Maps Static API satellite image as PNG bytes.
func (f *GoogleFetcher) Fetch(ctx context.Context, opts FetchOptions) ([]byte, string, error) {
	apiKey, err := f.secrets.Get(ctx, f.secretID, googleKeyKey)
	if err != nil {
		return nil, "", &FetchError{Code: errcode.GoogleClientError, Err: err}
	}

	u := fmt.Sprintf("%s?center=%s,%s&zoom=%d&size=640x640&scale=2&maptype=satellite&key=%s",
		googleBaseURL,
		strconv.FormatFloat(opts.Lat, 'f', 6, 64),
		strconv.FormatFloat(opts.Lon, 'f', 6, 64),
		opts.Zoom,
		url.QueryEscape(apiKey))

	data, err := fetchWithRetry(ctx, f.http, u, errcode.Google, f.cfg)
	if err != nil {
		return nil, "", err
	}
	return data, "image/png", nil
}

func fetchWithRetry(ctx context.Context, client *http.Client, rawURL string, source errcode.Source, cfg Config) ([]byte, error) {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	opts := retry.Options{
		AttemptLimit: maxRetries,
		Timeout:      timeout,
		BackoffBase:  500 * time.Millisecond,
	}

	build := func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	}

	resp, err := retry.Do(ctx, client, build, opts)
	if err != nil {
		return nil, mapRetryErr(source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &FetchError{
			Code: errcode.FromHTTPStatus(source, resp.StatusCode),
			Err:  fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Code: errcode.FromHTTPStatus(source, 0), Err: err}
	}
	return data, nil
}

func mapRetryErr(source errcode.Source, err error) error {
	var exhausted *retry.RetryExhaustedError
	if errors.As(err, &exhausted) {
		if exhausted.LastStatus == 0 {
			return &FetchError{Code: errcode.Timeout(source), Err: exhausted}
		}
		return &FetchError{Code: errcode.FromHTTPStatus(source, exhausted.LastStatus), Err: exhausted}
	}
	var deadline *retry.DeadlineExceededError
	if errors.As(err, &deadline) {
		return &FetchError{Code: errcode.DeadlineExceeded, Err: deadline}
	}
	return &FetchError{Code: errcode.Timeout(source), Err: err}
}

// TileCenterLatLon returns the (lat, lon) center of a z/x/y tile using
// the standard Web Mercator slippy-map projection.
func TileCenterLatLon(x, y, z int) (lat, lon float64) {
	n := math.Exp2(float64(z))
	minLon := float64(x)/n*360.0 - 180.0
	maxLon := float64(x+1)/n*360.0 - 180.0
	maxLat := latFromTileY(float64(y), n)
	minLat := latFromTileY(float64(y+1), n)
	return (minLat + maxLat) / 2.0, (minLon + maxLon) / 2.0
}

func latFromTileY(ty, n float64) float64 {
	yRad := math.Pi * (1 - 2*ty/n)
	return radToDeg(math.Atan(math.Sinh(yRad)))
}

func radToDeg(r float64) float64 { return r * 180.0 / math.Pi }
