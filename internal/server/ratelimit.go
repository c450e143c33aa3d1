// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"cmp"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

const (
	defaultMaxVisitors = 10000
	visitorStaleAfter  = 10 * time.Minute
	visitorSweepEvery  = 5 * time.Minute
)

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained request rate per IP. Zero disables limiting.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	// MaxVisitors caps the number of tracked IPs; the oldest are evicted on sweep.
	MaxVisitors int `mapstructure:"max_visitors"`
}

// Validate checks the config and applies defaults.
func (c *RateLimitConfig) Validate() error {
	if c.RequestsPerSecond < 0 {
		return sigilerr.Errorf(sigilerr.CodeServerConfigInvalid,
			"rate limit requests per second must not be negative (got %g)", c.RequestsPerSecond)
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		return sigilerr.Errorf(sigilerr.CodeServerConfigInvalid,
			"rate limit burst must be positive when rate is set (got burst=%d, rate=%g)", c.Burst, c.RequestsPerSecond)
	}
	if c.MaxVisitors < 0 {
		return sigilerr.Errorf(sigilerr.CodeServerConfigInvalid,
			"rate limit max visitors must not be negative (got %d)", c.MaxVisitors)
	}
	if c.MaxVisitors == 0 {
		c.MaxVisitors = defaultMaxVisitors
	}
	return nil
}

type visitor struct {
	tokens     float64
	lastSeen   time.Time
	lastRefill time.Time
}

// rateLimiter is a token bucket per client IP.
type rateLimiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	return &rateLimiter{cfg: cfg, now: time.Now, visitors: make(map[string]*visitor)}
}

// allow takes one token from ip's bucket.
func (l *rateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{tokens: float64(l.cfg.Burst), lastRefill: now}
		l.visitors[ip] = v
	}
	v.lastSeen = now

	v.tokens = min(float64(l.cfg.Burst), v.tokens+now.Sub(v.lastRefill).Seconds()*l.cfg.RequestsPerSecond)
	v.lastRefill = now

	if v.tokens < 1 {
		return false
	}
	v.tokens--
	return true
}

// sweep drops stale visitors and enforces MaxVisitors, oldest first.
func (l *rateLimiter) sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	evicted := 0
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorStaleAfter {
			delete(l.visitors, ip)
			evicted++
		}
	}

	if l.cfg.MaxVisitors > 0 && len(l.visitors) > l.cfg.MaxVisitors {
		type entry struct {
			ip       string
			lastSeen time.Time
		}
		entries := make([]entry, 0, len(l.visitors))
		for ip, v := range l.visitors {
			entries = append(entries, entry{ip: ip, lastSeen: v.lastSeen})
		}
		slices.SortFunc(entries, func(a, b entry) int { return cmp.Compare(a.lastSeen.UnixNano(), b.lastSeen.UnixNano()) })
		over := len(entries) - l.cfg.MaxVisitors
		for _, e := range entries[:over] {
			delete(l.visitors, e.ip)
		}
		evicted += over
		slog.Warn("rate limiter visitor map cap enforced",
			"evicted", over, "max_visitors", l.cfg.MaxVisitors, "remaining", len(l.visitors))
	}
	return evicted
}

// rateLimitMiddleware enforces per-IP limits. It is a pass-through when
// cfg.RequestsPerSecond is zero. The sweeper exits when done is closed.
func rateLimitMiddleware(cfg RateLimitConfig, done <-chan struct{}) func(http.Handler) http.Handler {
	if cfg.RequestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	l := newRateLimiter(cfg)

	go func() {
		ticker := time.NewTicker(visitorSweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.sweep()
			case <-done:
				return
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Limit by IP, not by connection.
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !l.allow(ip) {
				slog.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
