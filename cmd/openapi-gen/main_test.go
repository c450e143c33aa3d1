// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSpec(t *testing.T) {
	spec, err := generateSpec()
	require.NoError(t, err)
	s := string(spec)
	assert.Contains(t, s, "openapi")
	assert.Contains(t, s, "3.1")
	assert.Contains(t, s, "/api/v1/scopes/{workspace}/{system}/nodes")
	assert.Contains(t, s, "/api/v1/scopes/{workspace}/{system}/variants")
	assert.Contains(t, s, "/api/v1/scopes/{workspace}/{system}/events")
	assert.Contains(t, s, "/api/v1/config/providers")
	assert.Contains(t, s, "/health")
}

func TestGenerateSpec_ValidJSON(t *testing.T) {
	spec, err := generateSpec()
	require.NoError(t, err)
	assert.True(t, len(spec) > 100, "spec should be non-trivial")
	assert.Equal(t, byte('{'), spec[0], "spec should be JSON object")
}
