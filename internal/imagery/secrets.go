package imagery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	json "github.com/goccy/go-json"

	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/awsclients"
)

// SecretCache resolves a Secrets Manager secret into a JSON map and
// keeps the parsed value for ttlSeconds so that every imagery fetch
// doesn't round-trip to Secrets Manager.
type SecretCache struct {
	client     awsclients.SecretsManagerClient
	ttlSeconds int64
	now        func() time.Time

	mu      sync.Mutex
	cache   map[string]cachedSecret
}

type cachedSecret struct {
	value    map[string]string
	expireAt time.Time
}

// NewSecretCache builds a cache backed by client with the given TTL.
func NewSecretCache(client awsclients.SecretsManagerClient, ttlSeconds int64) *SecretCache {
	return &SecretCache{
		client:     client,
		ttlSeconds: ttlSeconds,
		now:        time.Now,
		cache:      make(map[string]cachedSecret),
	}
}

// Get returns the named key from the JSON secret identified by secretID,
// fetching and caching the whole secret document on a miss or expiry.
func (c *SecretCache) Get(ctx context.Context, secretID, key string) (string, error) {
	doc, err := c.document(ctx, secretID)
	if err != nil {
		return "", err
	}
	v, ok := doc[key]
	if !ok || v == "" {
		return "", fmt.Errorf("key %q not found in secret %q", key, secretID)
	}
	return v, nil
}

func (c *SecretCache) document(ctx context.Context, secretID string) (map[string]string, error) {
	now := c.now()

	c.mu.Lock()
	if cached, ok := c.cache[secretID]; ok && cached.expireAt.After(now) {
		c.mu.Unlock()
		return cached.value, nil
	}
	c.mu.Unlock()

	resp, err := c.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &secretID})
	if err != nil {
		return nil, fmt.Errorf("get secret %q: %w", secretID, err)
	}

	raw, err := secretBytes(resp)
	if err != nil {
		return nil, err
	}

	var doc map[string]string
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse secret %q: %w", secretID, err)
	}

	c.mu.Lock()
	c.cache[secretID] = cachedSecret{value: doc, expireAt: now.Add(time.Duration(c.ttlSeconds) * time.Second)}
	c.mu.Unlock()

	return doc, nil
}

func secretBytes(resp *secretsmanager.GetSecretValueOutput) ([]byte, error) {
	if resp.SecretString != nil && *resp.SecretString != "" {
		return []byte(*resp.SecretString), nil
	}
	if len(resp.SecretBinary) > 0 {
		return resp.SecretBinary, nil
	}
	return nil, fmt.Errorf("secret has no SecretString or SecretBinary")
}
