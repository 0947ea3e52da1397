// Package embedding wraps an embedding provider with bounded retries,
// exponential backoff, dimension checks and an optional vector cache.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"bookrag/internal/ai"
	"bookrag/internal/domain"
	"bookrag/internal/metrics"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

// Cache stores vectors by key. Errors are logged by the client and never
// fail an embedding call.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

type Client struct {
	provider   ai.Embedder
	maxRetries int
	baseDelay  time.Duration
	jitter     bool
	limiter    *rate.Limiter
	cache      Cache
	model      string
	metrics    *metrics.Metrics

	sleep  func(ctx context.Context, d time.Duration) error
	random func() float64

	mu        sync.Mutex
	dimension int
}

type Option func(*Client)

func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.baseDelay = d
		}
	}
}

// WithJitter adds up to 50% random extra delay to every backoff.
func WithJitter(enabled bool) Option {
	return func(c *Client) { c.jitter = enabled }
}

// WithRateLimit caps provider calls per second. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCache enables read-through caching. model is part of the cache key.
func WithCache(cache Cache, model string) Option {
	return func(c *Client) {
		c.cache = cache
		c.model = model
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithDimension pins the expected vector length instead of learning it
// from the first response.
func WithDimension(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.dimension = n
		}
	}
}

func New(provider ai.Embedder, opts ...Option) *Client {
	c := &Client{
		provider:   provider,
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		jitter:     true,
		sleep:      sleepContext,
		random:     rand.Float64,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dimension returns the vector length seen so far, 0 before the first call.
func (c *Client) Dimension() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dimension
}

// Embed returns the vector for text. Failed attempts are retried up to the
// configured budget with a delay of baseDelay*2^attempt; a backoff that
// would outlive the context deadline ends the call early.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.Errorf(domain.ErrValidation, "embed", "text to embed is empty")
	}

	var key string
	if c.cache != nil {
		key = CacheKey(c.model, text)
		vec, ok, err := c.cache.Get(ctx, key)
		switch {
		case err != nil:
			log.Printf("embedding cache get failed: %v", err)
		case ok && c.checkDimension(vec) == nil:
			c.metrics.EmbeddingAttempt("cache_hit")
			return vec, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, cancelled(ctx.Err())
				}
				return nil, domain.Wrap(domain.ErrEmbedding, "embed", err, "embedding rate limit wait failed")
			}
		}

		vec, err := c.provider.EmbedContent(ctx, text)
		if err == nil {
			err = c.checkDimension(vec)
		}
		if err == nil {
			c.metrics.EmbeddingAttempt("ok")
			if c.cache != nil {
				if setErr := c.cache.Set(ctx, key, vec); setErr != nil {
					log.Printf("embedding cache set failed: %v", setErr)
				}
			}
			return vec, nil
		}
		if ctx.Err() != nil {
			return nil, cancelled(ctx.Err())
		}

		lastErr = err
		c.metrics.EmbeddingAttempt("error")
		if attempt == c.maxRetries-1 {
			break
		}

		delay := c.backoff(attempt)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
			return nil, domain.Wrap(domain.ErrEmbedding, "embed",
				fmt.Errorf("%w: %w", context.DeadlineExceeded, lastErr),
				fmt.Sprintf("embedding gave up after %d attempts, no time left for backoff", attempt+1))
		}
		log.Printf("embedding attempt %d/%d failed: %v, retrying in %s", attempt+1, c.maxRetries, err, delay)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, cancelled(err)
		}
	}
	return nil, domain.Wrap(domain.ErrEmbedding, "embed", lastErr,
		fmt.Sprintf("embedding failed after %d attempts", c.maxRetries))
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.baseDelay << uint(attempt)
	if c.jitter {
		d += time.Duration(c.random() * 0.5 * float64(d))
	}
	return d
}

func (c *Client) checkDimension(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", ai.ErrMalformedEmbedding)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dimension == 0 {
		c.dimension = len(vec)
		return nil
	}
	if len(vec) != c.dimension {
		return fmt.Errorf("%w: got %d dimensions, want %d", ai.ErrMalformedEmbedding, len(vec), c.dimension)
	}
	return nil
}

// CacheKey derives the cache key of text under model.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func cancelled(err error) error {
	msg := "embedding cancelled"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "embedding deadline exceeded"
	}
	return domain.Wrap(domain.ErrCancelled, "embed", err, msg)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
