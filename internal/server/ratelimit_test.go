// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remote string) int {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })

	h := rateLimitMiddleware(RateLimitConfig{Burst: 1}, done)(okHandler())
	for range 50 {
		assert.Equal(t, http.StatusOK, hit(h, "192.168.1.1:1234"))
	}
}

func TestRateLimitMiddleware_BurstThenReject(t *testing.T) {
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })

	h := rateLimitMiddleware(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 3}, done)(okHandler())
	for i := range 3 {
		assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1000"), "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:2000"), "other port, same IP")
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1000"), "other IP has its own bucket")
}

func TestRateLimiter_Refill(t *testing.T) {
	now := time.Unix(1000, 0)
	l := newRateLimiter(RateLimitConfig{RequestsPerSecond: 2, Burst: 1})
	l.now = func() time.Time { return now }

	require.True(t, l.allow("ip"))
	require.False(t, l.allow("ip"))
	now = now.Add(500 * time.Millisecond)
	assert.True(t, l.allow("ip"))
}

func TestRateLimiter_Sweep(t *testing.T) {
	now := time.Unix(1000, 0)
	l := newRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, MaxVisitors: 2})
	l.now = func() time.Time { return now }

	l.allow("stale")
	now = now.Add(visitorStaleAfter + time.Second)
	for i := range 3 {
		now = now.Add(time.Second)
		l.allow(fmt.Sprintf("ip-%d", i))
	}

	assert.Equal(t, 2, l.sweep(), "one stale plus one over the cap")
	assert.Len(t, l.visitors, 2)
	assert.NotContains(t, l.visitors, "ip-0")
}

func TestRateLimitConfig_Validate(t *testing.T) {
	cfg := RateLimitConfig{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, defaultMaxVisitors, cfg.MaxVisitors)

	for _, bad := range []RateLimitConfig{
		{RequestsPerSecond: -1},
		{RequestsPerSecond: 5},
		{MaxVisitors: -1},
	} {
		err := bad.Validate()
		assert.True(t, sigilerr.HasCode(err, sigilerr.CodeServerConfigInvalid), "%+v", bad)
	}
}
