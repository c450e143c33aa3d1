// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"log/slog"
	"strings"

	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// Failover tries responders in order, skipping those that report
// themselves unavailable, and returns the first success.
type Failover struct {
	responders []Responder
	logger     *slog.Logger
}

// NewFailover requires at least one responder.
func NewFailover(logger *slog.Logger, responders ...Responder) (*Failover, error) {
	if len(responders) == 0 {
		return nil, sigilerr.New(sigilerr.CodeProviderRequestInvalid, "failover needs at least one responder")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Failover{responders: responders, logger: logger}, nil
}

func (f *Failover) Name() string { return f.responders[0].Name() }

func (f *Failover) Available(ctx context.Context) bool {
	for _, r := range f.responders {
		if r.Available(ctx) {
			return true
		}
	}
	return false
}

func (f *Failover) Respond(ctx context.Context, req Request) (*Response, error) {
	var errs []error
	for _, r := range f.responders {
		if !r.Available(ctx) {
			continue
		}
		resp, err := r.Respond(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		f.logger.Warn("responder failed, trying next", "provider", r.Name(), "error", err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, sigilerr.New(sigilerr.CodeProviderUpstreamFailure, "no responder available")
	}
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return nil, sigilerr.New(sigilerr.CodeProviderUpstreamFailure,
		"all responders failed: "+strings.Join(msgs, "; "), sigilerr.Field("attempts", len(errs)))
}

func (f *Failover) Close() error {
	var errs []error
	for _, r := range f.responders {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return sigilerr.Join(errs...)
	}
	return nil
}
