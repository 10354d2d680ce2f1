package imagery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/errcode"
)

type fakeSecretsClient struct {
	value string
	err   error
}

func (f *fakeSecretsClient) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	v := f.value
	return &secretsmanager.GetSecretValueOutput{SecretString: &v}, nil
}

func TestMapboxTokenResolvesFromSecretCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	secrets := &fakeSecretsClient{value: `{"MAPBOX_TOKEN":"tok123"}`}
	cache := NewSecretCache(secrets, 900)
	fetcher := NewMapboxFetcher(srv.Client(), cache, "pipeline-secrets", Config{MaxRetries: 1, Timeout: time.Second})

	// Point the fetcher at the test server by overriding via a round tripper
	// would require restructuring; instead exercise only the secret
	// resolution path the fetcher relies on, and cover HTTP behavior
	// through fetchWithRetry below.
	_ = fetcher

	token, err := cache.Get(context.Background(), "pipeline-secrets", "MAPBOX_TOKEN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "tok123" {
		t.Errorf("got token %q, want tok123", token)
	}
}

func TestFetchWithRetrySucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("image-data"))
	}))
	defer srv.Close()

	data, err := fetchWithRetry(context.Background(), srv.Client(), srv.URL, errcode.Mapbox, Config{MaxRetries: 2, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "image-data" {
		t.Errorf("got %q, want image-data", data)
	}
}

func TestFetchWithRetryNonRetryableStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := fetchWithRetry(context.Background(), srv.Client(), srv.URL, errcode.Mapbox, Config{MaxRetries: 3, Timeout: time.Second})
	if err == nil {
		t.Fatal("expected error")
	}
	fe, ok := err.(*FetchError)
	if !ok {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fe.Code != errcode.MapboxClientError {
		t.Errorf("got code %s, want %s", fe.Code, errcode.MapboxClientError)
	}
}

func TestFetchWithRetryExhaustsOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := fetchWithRetry(context.Background(), srv.Client(), srv.URL, errcode.Google, Config{MaxRetries: 2, Timeout: time.Second})
	if err == nil {
		t.Fatal("expected error")
	}
	fe, ok := err.(*FetchError)
	if !ok {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fe.Code != errcode.GoogleServerError {
		t.Errorf("got code %s, want %s", fe.Code, errcode.GoogleServerError)
	}
}

func TestFetchWithRetryTransportErrorMapsToTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.Listener.Addr().String()
	srv.Close()

	_, err := fetchWithRetry(context.Background(), http.DefaultClient, "http://"+addr, errcode.Mapbox, Config{MaxRetries: 2, Timeout: time.Second})
	if err == nil {
		t.Fatal("expected error")
	}
	fe, ok := err.(*FetchError)
	if !ok {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fe.Code != errcode.MapboxTimeout {
		t.Errorf("got code %s, want %s (no HTTP status was ever received)", fe.Code, errcode.MapboxTimeout)
	}
}

func TestTileCenterLatLon(t *testing.T) {
	lat, lon := TileCenterLatLon(0, 0, 1)
	if lat <= 0 || lon >= 0 {
		t.Errorf("expected top-left-ish quadrant tile center, got lat=%f lon=%f", lat, lon)
	}
}

func TestSecretCacheTTLExpiry(t *testing.T) {
	secrets := &fakeSecretsClient{value: `{"MAPBOX_TOKEN":"first"}`}
	cache := NewSecretCache(secrets, 1)

	fixedNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return fixedNow }

	v1, err := cache.Get(context.Background(), "id", "MAPBOX_TOKEN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v1 != "first" {
		t.Fatalf("got %q, want first", v1)
	}

	secrets.value = `{"MAPBOX_TOKEN":"second"}`
	cache.now = func() time.Time { return fixedNow.Add(500 * time.Millisecond) }
	v2, err := cache.Get(context.Background(), "id", "MAPBOX_TOKEN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v2 != "first" {
		t.Errorf("expected cached value before TTL expiry, got %q", v2)
	}

	cache.now = func() time.Time { return fixedNow.Add(2 * time.Second) }
	v3, err := cache.Get(context.Background(), "id", "MAPBOX_TOKEN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v3 != "second" {
		t.Errorf("expected refreshed value after TTL expiry, got %q", v3)
	}
}

func TestSecretCacheMissingKey(t *testing.T) {
	secrets := &fakeSecretsClient{value: `{"OTHER":"x"}`}
	cache := NewSecretCache(secrets, 900)

	if _, err := cache.Get(context.Background(), "id", "MAPBOX_TOKEN"); err == nil {
		t.Fatal("expected error for missing key")
	}
}
