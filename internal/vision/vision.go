// Package vision calls the tile classification model over HTTP and
// validates its structured response against the closed status enum.
//
// Unlike the AWS-service clients elsewhere in this module, there is no
// vendor SDK to wrap here: the vision backend is reached over a plain
// HTTPS endpoint, so this client is built directly on net/http and
// internal/retry rather than a generated client library.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	json "github.com/goccy/go-json"

	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/errcode"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/imagery"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/retry"
)

// Status is the closed set of classification outcomes the model may
// return.
type Status string

const (
	StatusYes   Status = "YES"
	StatusNo    Status = "NO"
	StatusMaybe Status = "MAYBE"
)

func (s Status) valid() bool {
	switch s {
	case StatusYes, StatusNo, StatusMaybe:
		return true
	default:
		return false
	}
}

// Result is the model's classification plus its accounting usage,
// captured verbatim for the durable TileJob row.
type Result struct {
	Status    Status         `json:"status"`
	Reasoning string         `json:"reasoning"`
	Usage     map[string]any `json:"usage"`
}

// AnalysisError is raised when the vision backend returns a response
// that fails structural or enum validation.
type AnalysisError struct {
	Err error
}

func (e *AnalysisError) Error() string { return fmt.Sprintf("vision analysis failed: %v", e.Err) }
func (e *AnalysisError) Unwrap() error { return e.Err }

type secretResolver interface {
	Get(ctx context.Context, secretID, key string) (string, error)
}

// Client analyzes tile imagery for the configured detection task.
type Client interface {
	Analyze(ctx context.Context, imageBytes []byte, contentType string) (Result, error)
}

// HTTPVisionClient calls a JSON HTTP endpoint that wraps the
// classification model, authenticating with an API key resolved
// through the imagery secret cache.
type HTTPVisionClient struct {
	http       *http.Client
	secrets    secretResolver
	secretID   string
	url        string
	maxRetries int
	timeout    time.Duration
}

// NewHTTPVisionClient builds a client against url, authenticating with
// OPENAI_API_KEY resolved from secretID through cache.
func NewHTTPVisionClient(httpClient *http.Client, cache *imagery.SecretCache, secretID, url string, maxRetries int, timeout time.Duration) *HTTPVisionClient {
	return &HTTPVisionClient{
		http:       httpClient,
		secrets:    cache,
		secretID:   secretID,
		url:        url,
		maxRetries: maxRetries,
		timeout:    timeout,
	}
}

type analyzeRequest struct {
	ImageBase64 string `json:"image_base64"`
	ContentType string `json:"content_type"`
}

type analyzeResponse struct {
	Status    string         `json:"status"`
	Reasoning string         `json:"reasoning"`
	Usage     map[string]any `json:"usage"`
}

// Analyze submits imageBytes to the vision backend and validates the
// structured response before returning it.
func (c *HTTPVisionClient) Analyze(ctx context.Context, imageBytes []byte, contentType string) (Result, error) {
	apiKey, err := c.secrets.Get(ctx, c.secretID, "OPENAI_API_KEY")
	if err != nil {
		return Result{}, &AnalysisError{Err: err}
	}

	reqBody, err := json.Marshal(analyzeRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(imageBytes),
		ContentType: contentType,
	})
	if err != nil {
		return Result{}, &AnalysisError{Err: fmt.Errorf("encode request: %w", err)}
	}

	build := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+apiKey)
		req.Header.Set("X-Request-Id", uuid.NewString())
		return req, nil
	}

	resp, err := retry.Do(ctx, c.http, build, retry.Options{
		AttemptLimit: c.maxRetries,
		Timeout:      c.timeout,
		BackoffBase:  500 * time.Millisecond,
	})
	if err != nil {
		return Result{}, mapErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, &AnalysisError{Err: fmt.Errorf("vision backend returned status %d", resp.StatusCode)}
	}

	var out analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, &AnalysisError{Err: fmt.Errorf("decode response: %w", err)}
	}

	status := Status(out.Status)
	if !status.valid() {
		return Result{}, &AnalysisError{Err: fmt.Errorf("unrecognized status %q", out.Status)}
	}
	if out.Reasoning == "" {
		return Result{}, &AnalysisError{Err: fmt.Errorf("response missing reasoning")}
	}

	return Result{Status: status, Reasoning: out.Reasoning, Usage: out.Usage}, nil
}

func mapErr(err error) error {
	var exhausted *retry.RetryExhaustedError
	if errors.As(err, &exhausted) {
		return &AnalysisError{Err: exhausted}
	}
	var deadline *retry.DeadlineExceededError
	if errors.As(err, &deadline) {
		return &AnalysisError{Err: deadline}
	}
	return &AnalysisError{Err: err}
}

// Code returns the error taxonomy code a failed analysis should be
// recorded under. Unlike the imagery fetchers, the vision backend has a
// single failure code: any non-deadline analysis error, whatever its
// cause, is recorded as a bad response, matching the model's own
// AnalysisError semantics (malformed response is indistinguishable from
// exhausted retries once it reaches the caller).
func Code(err error) errcode.Code {
	var deadline *retry.DeadlineExceededError
	if errors.As(err, &deadline) {
		return errcode.DeadlineExceeded
	}
	return errcode.OpenAIBadResponse
}
