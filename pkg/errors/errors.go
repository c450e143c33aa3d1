// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeGraphNodeDuplicateKey          Code = "graph.node.set.duplicate_key"
	CodeGraphEdgeDuplicateKey          Code = "graph.edge.set.duplicate_key"
	CodeGraphEdgeReferentialIntegrity  Code = "graph.edge.set.referential_integrity"
	CodeGraphStateReferentialIntegrity Code = "graph.state.load.referential_integrity"
	CodeGraphNodeNotFound              Code = "graph.node.get.not_found"
	CodeGraphEdgeNotFound              Code = "graph.edge.get.not_found"
	CodeGraphInvalidInput              Code = "graph.input.invalid_input"
	CodeGraphNotInitialized            Code = "graph.scope.not_initialized"

	CodeVariantNotFound     Code = "variant.get.not_found"
	CodeVariantInvalidInput Code = "variant.diff.invalid_input"

	CodeEmbeddingUpstreamFailure Code = "embedding.provider.upstream.failure"
	CodeEmbeddingResponseInvalid Code = "embedding.response.invalid"
	CodeEmbeddingNotConfigured   Code = "embedding.provider.not_initialized"

	CodeCacheBackendFailure Code = "cache.backend.failure"

	CodeWorkspaceOpenFailure   Code = "workspace.open.failure"
	CodeWorkspaceCommitFailure Code = "workspace.commit.failure"
	CodeWorkspaceCloseFailure  Code = "workspace.close.failure"

	CodeStoreDatabaseFailure    Code = "store.database.failure"
	CodeStoreBackendUnsupported Code = "store.backend.unsupported"
	CodeStoreInvalidInput       Code = "store.invalid_input"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeProviderRequestInvalid  Code = "provider.request.invalid"
	CodeProviderResponseInvalid Code = "provider.response.invalid"
	CodeProviderUpstreamFailure Code = "provider.upstream.failure"
	CodeProviderKeyInvalid      Code = "provider.key.invalid"
	CodeProviderKeyCheckFailed  Code = "provider.key.check.failure"

	CodeAssistNotConfigured Code = "assist.responder.not_initialized"

	CodeBroadcastPublishFailure Code = "broadcast.publish.failure"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerEntityNotFound  Code = "server.entity.not_found"
	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerConfigInvalid   Code = "server.config.invalid"

	CodeCLIGatewayNotRunning Code = "cli.gateway.not_running"
	CodeCLIRequestFailure    Code = "cli.request.failure"
	CodeCLIResponseInvalid   Code = "cli.response.invalid"
	CodeCLISetupFailure      Code = "cli.setup.failure"
	CodeCLIInputInvalid      Code = "cli.input.invalid"

	CodeSecretInvalidInput   Code = "secret.input.invalid_input"
	CodeSecretNotFound       Code = "secret.get.not_found"
	CodeSecretStoreFailure   Code = "secret.store.failure"
	CodeSecretResolveFailure Code = "secret.resolve.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldWorkspaceID(value string) Attr {
	return Field("workspace_id", value)
}

func FieldSystemID(value string) Attr {
	return Field("system_id", value)
}

func FieldNodeID(value string) Attr {
	return Field("node_id", value)
}

func FieldEdgeID(value string) Attr {
	return Field("edge_id", value)
}

func FieldVariantID(value string) Attr {
	return Field("variant_id", value)
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

// Wrap adds msg and fields to err. When err already carries a code, that
// innermost code is the one CodeOf reports; code applies only to uncoded
// errors.
func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsDuplicateKey(err error) bool {
	return reason(CodeOf(err)) == "duplicate_key"
}

func IsReferentialIntegrity(err error) bool {
	return reason(CodeOf(err)) == "referential_integrity"
}

func IsNotInitialized(err error) bool {
	return reason(CodeOf(err)) == "not_initialized"
}

func IsInvalidInput(err error) bool {
	code := CodeOf(err)
	if isResponseCode(code) {
		return false
	}
	r := reason(code)
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

// IsUpstreamFailure reports whether a remote dependency failed or returned
// something unusable.
func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	if strings.Contains(string(code), "upstream") && reason(code) == "failure" {
		return true
	}
	return isResponseCode(code) && code != CodeCLIResponseInvalid
}

func isResponseCode(code Code) bool {
	return strings.Contains(string(code), ".response.")
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsDuplicateKey(err):
		return http.StatusConflict
	case IsReferentialIntegrity(err):
		return http.StatusUnprocessableEntity
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsNotInitialized(err):
		return http.StatusServiceUnavailable
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
