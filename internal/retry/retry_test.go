package retry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDoSucceedsAfterRetryableStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := Do(context.Background(), srv.Client(), func(ctx context.Context) (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	}, Options{AttemptLimit: 3, BackoffBase: time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("got status %d", resp.StatusCode)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := Do(context.Background(), srv.Client(), func(ctx context.Context) (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	}, Options{AttemptLimit: 2, BackoffBase: time.Millisecond})
	if !IsRetryExhausted(err) {
		t.Fatalf("expected RetryExhaustedError, got %v", err)
	}
}

func TestDoNonRetryableStatusReturnsImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	resp, err := Do(context.Background(), srv.Client(), func(ctx context.Context) (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	}, Options{AttemptLimit: 3, BackoffBase: time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("got status %d", resp.StatusCode)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoDeadlineExceededBeforeRetrySleep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	fixedNow := time.Now()
	deadline := fixedNow.Unix() + 1

	start := time.Now()
	_, err := Do(context.Background(), srv.Client(), func(ctx context.Context) (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	}, Options{
		AttemptLimit:       2,
		BackoffBase:        1100 * time.Millisecond,
		DeadlineEpoch:      &deadline,
		MinAttemptBudgetMs: 600,
		Now:                func() time.Time { return fixedNow },
	})
	elapsed := time.Since(start)

	if !IsDeadlineExceeded(err) {
		t.Fatalf("expected DeadlineExceededError, got %v", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("expected the engine to abort before sleeping, took %s", elapsed)
	}
}

func TestDoDeadlineExceededBeforeAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	past := time.Now().Add(-time.Hour).Unix()
	_, err := Do(context.Background(), srv.Client(), func(ctx context.Context) (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	}, Options{AttemptLimit: 3, BackoffBase: time.Millisecond, DeadlineEpoch: &past, MinAttemptBudgetMs: 100})
	if !IsDeadlineExceeded(err) {
		t.Fatalf("expected DeadlineExceededError, got %v", err)
	}
}
