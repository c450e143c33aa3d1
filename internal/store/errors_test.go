// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sigil-dev/ontograph/internal/store"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

func TestDatabaseError(t *testing.T) {
	driverErr := errors.New("disk I/O error")
	err := store.DatabaseError(driverErr, "saving nodes", sigilerr.FieldWorkspaceID("ws"))

	assert.ErrorIs(t, err, store.ErrDatabase)
	assert.ErrorIs(t, err, driverErr)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeStoreDatabaseFailure))
	assert.Equal(t, "ws", sigilerr.FieldsOf(err)["workspace_id"])
	assert.NoError(t, store.DatabaseError(nil, "noop"))
}

func TestInvalidInput(t *testing.T) {
	err := store.InvalidInput("bad scope %q", "x/y")
	assert.ErrorIs(t, err, store.ErrInvalidInput)
	assert.True(t, sigilerr.IsInvalidInput(err))
	assert.Contains(t, err.Error(), `bad scope "x/y"`)
}
