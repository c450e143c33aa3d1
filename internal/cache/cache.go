// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package cache implements the version-aware response cache. Entries are keyed
// by (query, graph version) and are only ever served for the exact version
// they were computed against.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// Config controls local retention and semantic fallback.
type Config struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
	// SemanticMaxDistance is the largest vector distance a fallback match may
	// have. Zero disables the fallback even when a backing is configured.
	SemanticMaxDistance float64 `mapstructure:"semantic_max_distance"`
}

// DefaultConfig returns the defaults used when a field is zero.
func DefaultConfig() Config {
	return Config{
		TTL:                 10 * time.Minute,
		MaxEntries:          500,
		SemanticMaxDistance: 0.15,
	}
}

// Entry is one cached response.
type Entry struct {
	Query      string    `json:"query"`
	Version    int64     `json:"graph_version"`
	Response   string    `json:"response"`
	Operations string    `json:"operations,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Hit is a cache lookup result.
type Hit struct {
	Response   string `json:"response"`
	Operations string `json:"operations,omitempty"`
	// Semantic is true when the hit came from the fuzzy backing lookup.
	Semantic bool `json:"semantic"`
}

// Backing is the durable, similarity-searchable side of the cache.
type Backing interface {
	// Nearest returns the closest stored entry for query recorded at
	// version, or nil.
	Nearest(ctx context.Context, query string, version int64) (*Entry, error)
	Save(ctx context.Context, e Entry) error
}

type key struct {
	query   string
	version int64
}

// Option configures a ResponseCache.
type Option func(*ResponseCache)

func WithClock(now func() time.Time) Option {
	return func(c *ResponseCache) { c.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *ResponseCache) { c.logger = logger }
}

// WithBacking adds a semantic fallback consulted on local misses.
func WithBacking(b Backing) Option {
	return func(c *ResponseCache) { c.backing = b }
}

// ResponseCache is safe for concurrent use.
type ResponseCache struct {
	cfg     Config
	backing Backing

	mu      sync.Mutex
	entries map[key]Entry

	now    func() time.Time
	logger *slog.Logger
}

func New(cfg Config, opts ...Option) *ResponseCache {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	c := &ResponseCache{
		cfg:     cfg,
		entries: make(map[key]Entry),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the local entry for (query, version) if it has not expired.
// Expired entries are dropped on access.
func (c *ResponseCache) Get(query string, version int64) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{query, version}
	e, ok := c.entries[k]
	if !ok {
		return Entry{}, false
	}
	if c.now().Sub(e.CreatedAt) > c.cfg.TTL {
		delete(c.entries, k)
		return Entry{}, false
	}
	return e, true
}

// Lookup checks the local entries first, then the backing. A backing match is
// honored only when it was recorded at exactly version and lies within the
// configured distance.
func (c *ResponseCache) Lookup(ctx context.Context, query string, version int64) (*Hit, error) {
	if e, ok := c.Get(query, version); ok {
		return &Hit{Response: e.Response, Operations: e.Operations}, nil
	}
	if c.backing == nil || c.cfg.SemanticMaxDistance <= 0 {
		return nil, nil
	}

	e, err := c.backing.Nearest(ctx, query, version)
	if err != nil {
		if sigilerr.CodeOf(err) != "" {
			return nil, err
		}
		return nil, sigilerr.Wrap(err, sigilerr.CodeCacheBackendFailure, "semantic cache lookup failed")
	}
	if e == nil {
		return nil, nil
	}
	if e.Version != version {
		c.logger.Debug("semantic cache match ignored: stale version",
			"query", query, "match_version", e.Version, "version", version)
		return nil, nil
	}
	return &Hit{Response: e.Response, Operations: e.Operations, Semantic: true}, nil
}

// Put records a response locally and, when configured, in the backing.
// The local entry is kept even if the backing write fails.
func (c *ResponseCache) Put(ctx context.Context, query string, version int64, response, operations string) error {
	e := Entry{
		Query:      query,
		Version:    version,
		Response:   response,
		Operations: operations,
		CreatedAt:  c.now(),
	}

	c.mu.Lock()
	c.entries[key{query, version}] = e
	c.trimLocked()
	c.mu.Unlock()

	if c.backing == nil {
		return nil
	}
	if err := c.backing.Save(ctx, e); err != nil {
		if sigilerr.CodeOf(err) != "" {
			return err
		}
		return sigilerr.Wrap(err, sigilerr.CodeCacheBackendFailure, "semantic cache write failed")
	}
	return nil
}

// EvictOlderThan drops every local entry recorded before version and
// returns how many were dropped.
func (c *ResponseCache) EvictOlderThan(version int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if k.version < version {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Clear drops every local entry.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}

// Len returns the number of local entries, including expired ones not yet
// swept.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// trimLocked removes the oldest entries beyond MaxEntries.
func (c *ResponseCache) trimLocked() {
	for len(c.entries) > c.cfg.MaxEntries {
		var (
			oldest key
			at     time.Time
			found  bool
		)
		for k, e := range c.entries {
			if !found || e.CreatedAt.Before(at) {
				oldest, at, found = k, e.CreatedAt, true
			}
		}
		delete(c.entries, oldest)
	}
}
