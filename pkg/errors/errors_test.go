// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// New / Errorf
// ---------------------------------------------------------------------------

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := sigilerr.New(
		sigilerr.CodeGraphNodeDuplicateKey,
		"node already exists",
		sigilerr.FieldWorkspaceID("ws-1"),
		sigilerr.FieldNodeID("SYS-1"),
	)

	require.Error(t, err)
	assert.Equal(t, sigilerr.CodeGraphNodeDuplicateKey, sigilerr.CodeOf(err))
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeGraphNodeDuplicateKey))

	fields := sigilerr.FieldsOf(err)
	assert.Equal(t, "ws-1", fields["workspace_id"])
	assert.Equal(t, "SYS-1", fields["node_id"])
}

func TestErrorfFormatsMessage(t *testing.T) {
	err := sigilerr.Errorf(sigilerr.CodeGraphEdgeReferentialIntegrity, "edge %s: source %q missing", "e-1", "FUNC-9")
	require.Error(t, err)
	assert.Equal(t, sigilerr.CodeGraphEdgeReferentialIntegrity, sigilerr.CodeOf(err))
	assert.Contains(t, err.Error(), `edge e-1: source "FUNC-9" missing`)
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "write failed: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, sigilerr.CodeStoreDatabaseFailure, sigilerr.CodeOf(err))
}

// ---------------------------------------------------------------------------
// Wrap / Wrapf / With
// ---------------------------------------------------------------------------

func TestWrapPreservesWrappedErrorAndCode(t *testing.T) {
	root := stderrors.New("record missing")
	err := sigilerr.Wrap(root, sigilerr.CodeVariantNotFound, "loading variant", sigilerr.FieldVariantID("v-42"))

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.True(t, sigilerr.IsNotFound(err))
	assert.Equal(t, "v-42", sigilerr.FieldsOf(err)["variant_id"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, sigilerr.Wrap(nil, sigilerr.CodeServerInternalFailure, "ignored"))
	assert.NoError(t, sigilerr.Wrapf(nil, sigilerr.CodeServerInternalFailure, "ignored %s", "arg"))
	assert.NoError(t, sigilerr.With(nil, sigilerr.FieldNodeID("x")))
}

func TestWithAddsContextWithoutChangingCode(t *testing.T) {
	base := sigilerr.New(sigilerr.CodeGraphEdgeDuplicateKey, "edge exists")
	withCtx := sigilerr.With(base, sigilerr.FieldEdgeID("e-1"))

	assert.Equal(t, sigilerr.CodeGraphEdgeDuplicateKey, sigilerr.CodeOf(withCtx))
	assert.Equal(t, "e-1", sigilerr.FieldsOf(withCtx)["edge_id"])
}

func TestWithOnPlainErrorDefaultsToInternalCode(t *testing.T) {
	enriched := sigilerr.With(stderrors.New("something broke"), sigilerr.FieldSystemID("sys-1"))
	assert.Equal(t, sigilerr.CodeServerInternalFailure, sigilerr.CodeOf(enriched))
	assert.Equal(t, "sys-1", sigilerr.FieldsOf(enriched)["system_id"])
}

func TestCodeOfReturnsInnermostCodedError(t *testing.T) {
	inner := sigilerr.New(sigilerr.CodeStoreDatabaseFailure, "db")
	outer := sigilerr.Wrap(inner, sigilerr.CodeServerInternalFailure, "handler")
	assert.Equal(t, sigilerr.CodeStoreDatabaseFailure, sigilerr.CodeOf(outer))
}

func TestErrorIsWithWrappedChain(t *testing.T) {
	sentinel := stderrors.New("root cause")
	outer := sigilerr.Wrap(fmt.Errorf("mid: %w", sentinel), sigilerr.CodeServerInternalFailure, "handler")
	assert.ErrorIs(t, outer, sentinel)
}

func TestFieldsWithEmptyKeyAreIgnored(t *testing.T) {
	err := sigilerr.New(sigilerr.CodeStoreDatabaseFailure, "oops",
		sigilerr.Field("", "should-be-dropped"),
		sigilerr.FieldProvider("kept"),
	)
	fields := sigilerr.FieldsOf(err)
	assert.Equal(t, "kept", fields["provider"])
	assert.NotContains(t, fields, "")
}

// ---------------------------------------------------------------------------
// Classification helpers
// ---------------------------------------------------------------------------

func TestClassificationAndStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		code   sigilerr.Code
		status int
		check  func(error) bool
	}{
		{name: "node duplicate", code: sigilerr.CodeGraphNodeDuplicateKey, status: http.StatusConflict, check: sigilerr.IsDuplicateKey},
		{name: "edge duplicate", code: sigilerr.CodeGraphEdgeDuplicateKey, status: http.StatusConflict, check: sigilerr.IsDuplicateKey},
		{name: "dangling edge", code: sigilerr.CodeGraphEdgeReferentialIntegrity, status: http.StatusUnprocessableEntity, check: sigilerr.IsReferentialIntegrity},
		{name: "dangling state", code: sigilerr.CodeGraphStateReferentialIntegrity, status: http.StatusUnprocessableEntity, check: sigilerr.IsReferentialIntegrity},
		{name: "node not found", code: sigilerr.CodeGraphNodeNotFound, status: http.StatusNotFound, check: sigilerr.IsNotFound},
		{name: "variant not found", code: sigilerr.CodeVariantNotFound, status: http.StatusNotFound, check: sigilerr.IsNotFound},
		{name: "not initialized", code: sigilerr.CodeGraphNotInitialized, status: http.StatusServiceUnavailable, check: sigilerr.IsNotInitialized},
		{name: "invalid input", code: sigilerr.CodeGraphInvalidInput, status: http.StatusBadRequest, check: sigilerr.IsInvalidInput},
		{name: "invalid value", code: sigilerr.CodeConfigValidateInvalidValue, status: http.StatusBadRequest, check: sigilerr.IsInvalidInput},
		{name: "embedding upstream", code: sigilerr.CodeEmbeddingUpstreamFailure, status: http.StatusBadGateway, check: sigilerr.IsUpstreamFailure},
		{name: "provider upstream", code: sigilerr.CodeProviderUpstreamFailure, status: http.StatusBadGateway, check: sigilerr.IsUpstreamFailure},
		{name: "embedding response", code: sigilerr.CodeEmbeddingResponseInvalid, status: http.StatusBadGateway, check: sigilerr.IsUpstreamFailure},
		{name: "internal", code: sigilerr.CodeServerInternalFailure, status: http.StatusInternalServerError, check: func(err error) bool { return !sigilerr.IsNotFound(err) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sigilerr.New(tt.code, "boom")
			assert.Equal(t, tt.status, sigilerr.HTTPStatus(err))
			assert.True(t, tt.check(err))
		})
	}
}

func TestClassificationOnPlainError(t *testing.T) {
	plain := stderrors.New("plain")
	assert.False(t, sigilerr.IsNotFound(plain))
	assert.False(t, sigilerr.IsDuplicateKey(plain))
	assert.False(t, sigilerr.IsReferentialIntegrity(plain))
	assert.False(t, sigilerr.IsNotInitialized(nil))
	assert.Equal(t, http.StatusInternalServerError, sigilerr.HTTPStatus(plain))
	assert.Equal(t, http.StatusInternalServerError, sigilerr.HTTPStatus(nil))
}

func TestJoinCombinesErrors(t *testing.T) {
	a := stderrors.New("a")
	b := stderrors.New("b")
	joined := sigilerr.Join(a, b)
	assert.ErrorIs(t, joined, a)
	assert.ErrorIs(t, joined, b)
	assert.Equal(t, sigilerr.CodeServerInternalFailure, sigilerr.CodeOf(joined))
}

func TestWrapKeepsInnermostCode(t *testing.T) {
	inner := sigilerr.New(sigilerr.CodeSecretNotFound, "secret missing")
	err := sigilerr.Wrap(inner, sigilerr.CodeSecretResolveFailure, "resolving config key")

	assert.Equal(t, sigilerr.CodeSecretNotFound, sigilerr.CodeOf(err))
	assert.Equal(t, http.StatusNotFound, sigilerr.HTTPStatus(err))
	assert.Contains(t, err.Error(), "resolving config key")

	plain := sigilerr.Wrap(stderrors.New("dial tcp"), sigilerr.CodeProviderUpstreamFailure, "calling provider")
	assert.Equal(t, sigilerr.CodeProviderUpstreamFailure, sigilerr.CodeOf(plain))
}
