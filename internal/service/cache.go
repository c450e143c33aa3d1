// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package service

import (
	"context"

	"github.com/sigil-dev/ontograph/internal/cache"
)

// CheckCache returns a cached response for query computed at version, or nil.
// A version other than the store's current one is always a miss, so callers
// holding an old version can never be served a result for a graph that no
// longer exists.
func (s *Service) CheckCache(ctx context.Context, query string, version int64) (*cache.Hit, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if version != s.graph.Version() {
		return nil, nil
	}
	return s.cache.Lookup(ctx, query, version)
}

// CacheResponse records a response computed at version. Responses for any
// version other than the store's current one are dropped. If the graph moves
// on while the entry is written, entries older than the new version are
// evicted again.
func (s *Service) CacheResponse(ctx context.Context, query string, version int64, response, operations string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if current := s.graph.Version(); version != current {
		s.logger.Debug("response not cached: version mismatch", "version", version, "current", current)
		return nil
	}
	if err := s.cache.Put(ctx, query, version, response, operations); err != nil {
		return err
	}
	if current := s.graph.Version(); current != version {
		s.cache.EvictOlderThan(current)
	}
	return nil
}

// CachedResponses returns the number of local response-cache entries.
func (s *Service) CachedResponses() int {
	return s.cache.Len()
}
