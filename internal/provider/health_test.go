// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider_test

import (
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/ontograph/internal/provider"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

var errBoom = stderrors.New("boom")

func newTracker(t *testing.T, cooldown time.Duration, threshold int) *provider.HealthTracker {
	t.Helper()
	h, err := provider.NewHealthTracker(cooldown, threshold)
	require.NoError(t, err)
	return h
}

func TestHealthTracker_RejectsBadSettings(t *testing.T) {
	tests := []struct {
		name      string
		cooldown  time.Duration
		threshold int
	}{
		{name: "zero cooldown", cooldown: 0, threshold: 1},
		{name: "negative cooldown", cooldown: -time.Second, threshold: 1},
		{name: "zero threshold", cooldown: time.Second, threshold: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := provider.NewHealthTracker(tt.cooldown, tt.threshold)
			require.Error(t, err)
			assert.True(t, sigilerr.HasCode(err, sigilerr.CodeConfigValidateInvalidValue))
		})
	}
}

func TestHealthTracker_FailureAndRecovery(t *testing.T) {
	h := provider.MustHealthTracker()
	assert.True(t, h.IsHealthy())

	h.Record(errBoom)
	assert.False(t, h.IsHealthy())

	h.Record(nil)
	assert.True(t, h.IsHealthy())
}

func TestHealthTracker_ThresholdNeedsConsecutiveFailures(t *testing.T) {
	h := newTracker(t, time.Minute, 3)

	h.Record(errBoom)
	h.Record(errBoom)
	h.Record(nil)
	h.Record(errBoom)
	h.Record(errBoom)
	assert.True(t, h.IsHealthy(), "streak was broken by a success")
	assert.Equal(t, 2, h.Metrics().ConsecutiveFailures)

	h.Record(errBoom)
	assert.False(t, h.IsHealthy())
}

func TestHealthTracker_CooldownBoundary(t *testing.T) {
	cooldown := 10 * time.Second
	now := time.Now()

	tests := []struct {
		name        string
		elapsed     time.Duration
		wantHealthy bool
	}{
		{name: "before cooldown", elapsed: 9 * time.Second, wantHealthy: false},
		{name: "at exact cooldown boundary", elapsed: 10 * time.Second, wantHealthy: true},
		{name: "after cooldown", elapsed: 11 * time.Second, wantHealthy: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTracker(t, cooldown, 1)
			h.SetClock(func() time.Time { return now })
			h.Record(errBoom)
			assert.False(t, h.IsHealthy())

			h.SetClock(func() time.Time { return now.Add(tt.elapsed) })
			assert.Equal(t, tt.wantHealthy, h.IsHealthy())
		})
	}
}

func TestHealthTracker_Metrics(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := newTracker(t, time.Minute, 1)
	h.SetClock(func() time.Time { return now })

	m := h.Metrics()
	assert.True(t, m.Available)
	assert.Nil(t, m.LastFailureAt)
	assert.Nil(t, m.CooldownUntil)
	assert.Zero(t, m.FailureRate())

	h.Record(nil)
	h.Record(errBoom)
	h.Record(stderrors.New("rate limited"))
	m = h.Metrics()
	assert.False(t, m.Available)
	assert.Equal(t, int64(3), m.Calls)
	assert.Equal(t, int64(2), m.FailureCount)
	assert.Equal(t, "rate limited", m.LastError)
	assert.InDelta(t, 2.0/3.0, m.FailureRate(), 1e-9)
	require.NotNil(t, m.CooldownUntil)
	assert.Equal(t, now.Add(time.Minute), *m.CooldownUntil)

	h.Record(nil)
	m = h.Metrics()
	assert.True(t, m.Available)
	assert.Nil(t, m.CooldownUntil)
	assert.Zero(t, m.ConsecutiveFailures)
	assert.NotNil(t, m.LastFailureAt, "history survives recovery")
}

func TestHealthTracker_ConcurrentRecordCalls(t *testing.T) {
	h := newTracker(t, 30*time.Second, 1)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for range 100 {
				h.Record(errBoom)
			}
		}()
		go func() {
			defer wg.Done()
			for range 100 {
				h.Record(nil)
			}
		}()
		go func() {
			defer wg.Done()
			for range 100 {
				_ = h.IsHealthy()
			}
		}()
	}
	wg.Wait()
	m := h.Metrics()
	assert.Equal(t, int64(1000), m.FailureCount)
	assert.Equal(t, int64(2000), m.Calls)
}
