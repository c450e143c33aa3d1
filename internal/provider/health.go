// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"sync"
	"time"

	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
	"github.com/sigil-dev/ontograph/pkg/health"
)

const (
	// DefaultHealthCooldown is how long a tripped provider is skipped.
	DefaultHealthCooldown = 30 * time.Second
	// DefaultFailureThreshold is the failure streak that trips a provider.
	DefaultFailureThreshold = 1
)

// HealthTracker records the outcome of every remote call a provider makes.
// A streak of threshold consecutive failures trips the provider: it reports
// unavailable until the cooldown has passed, then gets another chance. Any
// success clears the streak.
type HealthTracker struct {
	mu        sync.RWMutex
	cooldown  time.Duration
	threshold int
	now       func() time.Time

	calls       int64
	failures    int64
	streak      int
	lastErr     string
	lastFailure time.Time
	trippedAt   time.Time
}

// NewHealthTracker returns a tracker that starts available.
func NewHealthTracker(cooldown time.Duration, threshold int) (*HealthTracker, error) {
	if cooldown <= 0 {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"health tracker cooldown must be positive, got %s", cooldown)
	}
	if threshold < 1 {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"health tracker failure threshold must be at least 1, got %d", threshold)
	}
	return &HealthTracker{cooldown: cooldown, threshold: threshold, now: time.Now}, nil
}

// MustHealthTracker is NewHealthTracker with the package defaults.
func MustHealthTracker() *HealthTracker {
	h, err := NewHealthTracker(DefaultHealthCooldown, DefaultFailureThreshold)
	if err != nil {
		panic(err)
	}
	return h
}

// SetClock replaces the time source.
func (h *HealthTracker) SetClock(now func() time.Time) {
	h.mu.Lock()
	h.now = now
	h.mu.Unlock()
}

// Record counts one call; a nil err is a success.
func (h *HealthTracker) Record(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.calls++
	if err == nil {
		h.streak = 0
		h.trippedAt = time.Time{}
		return
	}
	h.failures++
	h.streak++
	h.lastErr = err.Error()
	h.lastFailure = h.now()
	if h.streak >= h.threshold {
		h.trippedAt = h.lastFailure
	}
}

// IsHealthy reports whether calls should be attempted.
func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.availableLocked()
}

func (h *HealthTracker) availableLocked() bool {
	return h.trippedAt.IsZero() || h.now().Sub(h.trippedAt) >= h.cooldown
}

// Metrics snapshots the tracker.
func (h *HealthTracker) Metrics() health.Metrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := health.Metrics{
		Calls:               h.calls,
		FailureCount:        h.failures,
		ConsecutiveFailures: h.streak,
		LastError:           h.lastErr,
		Available:           h.availableLocked(),
	}
	if h.failures > 0 {
		t := h.lastFailure
		m.LastFailureAt = &t
	}
	if !h.trippedAt.IsZero() {
		until := h.trippedAt.Add(h.cooldown)
		m.CooldownUntil = &until
	}
	return m
}
