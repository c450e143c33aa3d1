// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openai

import (
	openaisdk "github.com/openai/openai-go"

	"github.com/sigil-dev/ontograph/internal/provider"
)

// BuildParams exposes buildParams for white-box testing.
var BuildParams = func(defaultModel string, req provider.Request) (openaisdk.ChatCompletionNewParams, error) {
	return buildParams(defaultModel, req)
}
