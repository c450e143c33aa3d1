// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package health holds the JSON view of a remote collaborator's call history.
package health

import "time"

// Metrics is a point-in-time snapshot of one provider's call outcomes.
type Metrics struct {
	Calls               int64      `json:"calls"`
	FailureCount        int64      `json:"failure_count"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil       *time.Time `json:"cooldown_until,omitempty"`
	Available           bool       `json:"available"`
}

// FailureRate is the share of recorded calls that failed, 0 when nothing was
// recorded.
func (m Metrics) FailureRate() float64 {
	if m.Calls == 0 {
		return 0
	}
	return float64(m.FailureCount) / float64(m.Calls)
}
