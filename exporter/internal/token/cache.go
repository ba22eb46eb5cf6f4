package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// SafetyMargin is subtracted from the upstream expiry before a token is
	// stored, so it is dropped before the authorization server would reject it.
	SafetyMargin = 60 * time.Second

	// RetryInterval is the pause after a failed refresh.
	RetryInterval = 10 * time.Second
)

// ErrNoToken is returned by Current when no usable token is cached.
var ErrNoToken = errors.New("no token available")

// Token is a cached bearer token.
type Token struct {
	Secret    string
	ExpiresAt time.Time
}

// Source performs one token exchange with the authorization server.
type Source interface {
	// Fetch returns the access token and the absolute instant the
	// authorization server declared it expires at.
	Fetch(ctx context.Context) (secret string, expiresAt time.Time, err error)

	// String describes the source for logs. It must not include secrets.
	String() string
}

// Cache holds at most one Token. It is safe for concurrent use.
type Cache struct {
	src   Source
	retry time.Duration

	mu  sync.RWMutex
	tok *Token

	now func() time.Time // injectable for deterministic tests

	refreshes  *prometheus.CounterVec
	expiryDesc *prometheus.Desc
}

// NewCache creates an empty Cache backed by src.
func NewCache(src Source) *Cache {
	refreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aasm_token_refresh_total",
		Help: "Token refresh attempts by outcome.",
	}, []string{"outcome"})
	refreshes.WithLabelValues("success")
	refreshes.WithLabelValues("failure")

	expiryDesc := prometheus.NewDesc(
		"aasm_token_expiry_timestamp_seconds",
		"Instant the cached token stops being handed out, as a Unix timestamp.",
		nil, nil,
	)

	return &Cache{
		src:        src,
		retry:      RetryInterval,
		now:        time.Now,
		refreshes:  refreshes,
		expiryDesc: expiryDesc,
	}
}

// Refresh performs one exchange. On success the new token is stored with
// its expiry shortened by SafetyMargin, and that expiry is returned. On any
// failure the cached token is cleared and the error returned.
func (c *Cache) Refresh(ctx context.Context) (time.Time, error) {
	secret, upstreamExpiry, err := c.src.Fetch(ctx)
	if err == nil && upstreamExpiry.IsZero() {
		err = ErrMissingExpiry
	}
	if err != nil {
		c.set(nil)
		c.refreshes.WithLabelValues("failure").Inc()
		return time.Time{}, fmt.Errorf("token: refresh via %s: %w", c.src, err)
	}

	expiresAt := upstreamExpiry.Add(-SafetyMargin)
	if !c.now().Before(expiresAt) {
		c.set(nil)
		c.refreshes.WithLabelValues("failure").Inc()
		return time.Time{}, fmt.Errorf("token: refresh via %s: lifetime ends at %s, inside the %s safety margin",
			c.src, upstreamExpiry.UTC().Format(time.RFC3339), SafetyMargin)
	}

	c.set(&Token{Secret: secret, ExpiresAt: expiresAt})
	c.refreshes.WithLabelValues("success").Inc()
	return expiresAt, nil
}

// Run refreshes the token until ctx is cancelled: after a success it sleeps
// until the returned expiry, after a failure it sleeps RetryInterval.
// It must be the only goroutine calling Refresh.
func (c *Cache) Run(ctx context.Context) {
	for {
		var wait time.Duration
		expiresAt, err := c.Refresh(ctx)
		if err != nil {
			wait = c.retry
			slog.Error("token: refresh failed, will retry",
				"source", c.src.String(),
				"err", err,
				"retry_in", wait)
		} else {
			wait = expiresAt.Sub(c.now())
			slog.Info("token: refreshed",
				"source", c.src.String(),
				"expires_at", expiresAt.UTC().Format(time.RFC3339),
				"next_refresh_in", wait.Round(time.Second))
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Current returns a copy of the cached secret if it has not yet expired.
// It never triggers a refresh.
func (c *Cache) Current() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tok == nil || !c.now().Before(c.tok.ExpiresAt) {
		return "", ErrNoToken
	}
	return c.tok.Secret, nil
}

func (c *Cache) set(tok *Token) {
	c.mu.Lock()
	c.tok = tok
	c.mu.Unlock()
}

// Describe implements prometheus.Collector.
func (c *Cache) Describe(ch chan<- *prometheus.Desc) {
	c.refreshes.Describe(ch)
	ch <- c.expiryDesc
}

// Collect implements prometheus.Collector. The expiry gauge is emitted only
// while a token is cached.
func (c *Cache) Collect(ch chan<- prometheus.Metric) {
	c.refreshes.Collect(ch)

	c.mu.RLock()
	tok := c.tok
	c.mu.RUnlock()
	if tok == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.expiryDesc, prometheus.GaugeValue,
		float64(tok.ExpiresAt.Unix()))
}
