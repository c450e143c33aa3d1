// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package variant manages independent, mutable copies of a graph state used
// for what-if edits. Variants are tiered by recency of access and never touch
// the authoritative store until promoted.
package variant

import (
	"cmp"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-dev/ontograph/internal/graph"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// Tier is a variant's residency class.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// Config controls tiering and eviction.
type Config struct {
	HotInactivity  time.Duration `mapstructure:"hot_inactivity"`
	WarmInactivity time.Duration `mapstructure:"warm_inactivity"`
	MaxHot         int           `mapstructure:"max_hot"`
	MaxWarm        int           `mapstructure:"max_warm"`
	// MaxMemoryBytes bounds the estimated size of all variants. When it is
	// exceeded, least-recently-accessed COLD variants are evicted. Zero
	// disables eviction.
	MaxMemoryBytes int64 `mapstructure:"max_memory_bytes"`
}

// DefaultConfig returns the stock tiering thresholds.
func DefaultConfig() Config {
	return Config{
		HotInactivity:  5 * time.Minute,
		WarmInactivity: 30 * time.Minute,
		MaxHot:         3,
		MaxWarm:        10,
	}
}

// Diff is a batch of edits applied to a variant in one step.
type Diff struct {
	AddNodes    []*graph.Node `json:"add_nodes,omitempty"`
	UpdateNodes []*graph.Node `json:"update_nodes,omitempty"`
	DeleteNodes []string      `json:"delete_nodes,omitempty"`
	AddEdges    []*graph.Edge `json:"add_edges,omitempty"`
	UpdateEdges []*graph.Edge `json:"update_edges,omitempty"`
	DeleteEdges []string      `json:"delete_edges,omitempty"`
}

// Info describes a variant without exposing its state.
type Info struct {
	ID           string    `json:"id"`
	BaseSystemID string    `json:"base_system_id"`
	Tier         Tier      `json:"tier"`
	Version      int64     `json:"version"`
	NodeCount    int       `json:"node_count"`
	EdgeCount    int       `json:"edge_count"`
	SizeBytes    int64     `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
}

// NodesDiff lists semantic IDs that differ between two variants.
type NodesDiff struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}

// EdgesDiff lists edge UUIDs present in only one of two variants.
type EdgesDiff struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// Comparison is the result of Compare(a, b), seen from a to b.
type Comparison struct {
	Nodes NodesDiff `json:"nodes"`
	Edges EdgesDiff `json:"edges"`
}

// MemoryUsage reports the estimated footprint of the pool.
type MemoryUsage struct {
	TotalBytes int64 `json:"total_bytes"`
	LimitBytes int64 `json:"limit_bytes"`
	Variants   int   `json:"variants"`
	Hot        int   `json:"hot"`
	Warm       int   `json:"warm"`
	Cold       int   `json:"cold"`
	Evicted    int64 `json:"evicted"`
}

type variant struct {
	id           string
	baseSystemID string
	createdAt    time.Time

	// guarded by Pool.mu
	tier         Tier
	lastAccessed time.Time
	accessSeq    uint64
	sizeBytes    int64
	version      int64
	nodeCount    int
	edgeCount    int

	// mu serializes writers of state.
	mu    sync.Mutex
	state *graph.State
	gone  atomic.Bool
}

// Pool owns every variant of one scope.
type Pool struct {
	mu       sync.Mutex
	variants map[string]*variant
	cfg      Config
	seq      uint64
	evicted  int64
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithClock overrides the pool's time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// WithLogger sets the pool logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// NewPool creates an empty pool. Zero-valued config fields fall back to
// DefaultConfig, except MaxMemoryBytes.
func NewPool(cfg Config, opts ...Option) *Pool {
	def := DefaultConfig()
	if cfg.HotInactivity <= 0 {
		cfg.HotInactivity = def.HotInactivity
	}
	if cfg.WarmInactivity <= 0 {
		cfg.WarmInactivity = def.WarmInactivity
	}
	if cfg.MaxHot <= 0 {
		cfg.MaxHot = def.MaxHot
	}
	if cfg.MaxWarm <= 0 {
		cfg.MaxWarm = def.MaxWarm
	}
	p := &Pool{
		variants: make(map[string]*variant),
		cfg:      cfg,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Create deep-copies state into a new HOT variant and returns its ID.
func (p *Pool) Create(baseSystemID string, state *graph.State) string {
	snap := state.Clone()
	if snap == nil {
		snap = graph.NewState()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	v := &variant{
		id:           uuid.NewString(),
		baseSystemID: baseSystemID,
		createdAt:    now,
		tier:         TierHot,
		state:        snap,
	}
	p.touchLocked(v, now)
	p.measureLocked(v)
	p.variants[v.id] = v
	p.rebalanceLocked(now)

	p.logger.Debug("variant created", "variant_id", v.id, "base_system_id", baseSystemID, "nodes", v.nodeCount)
	return v.id
}

// Fork creates a new variant from the current state of an existing one.
func (p *Pool) Fork(sourceID string) (string, error) {
	p.mu.Lock()
	src, ok := p.variants[sourceID]
	p.mu.Unlock()
	if !ok {
		return "", notFound(sourceID)
	}

	src.mu.Lock()
	if src.gone.Load() {
		src.mu.Unlock()
		return "", notFound(sourceID)
	}
	snap := src.state.Clone()
	src.mu.Unlock()

	return p.Create(src.baseSystemID, snap), nil
}

// Get returns a deep copy of the variant's state, or nil if it does not
// exist. Accessing a variant makes it HOT again.
func (p *Pool) Get(id string) *graph.State {
	p.mu.Lock()
	v, ok := p.variants[id]
	if ok {
		now := p.now()
		p.touchLocked(v, now)
		v.tier = TierHot
		p.rebalanceLocked(now)
	}
	p.mu.Unlock()
	if !ok {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gone.Load() {
		return nil
	}
	return v.state.Clone()
}

// Info returns metadata for one variant without touching it.
func (p *Pool) Info(id string) (Info, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.variants[id]
	if !ok {
		return Info{}, notFound(id)
	}
	return v.info(), nil
}

// Apply applies diff to the variant and returns its new version. Node and
// edge adds/updates overwrite by key, deletes remove by key, and a node
// delete drops every edge touching it. The variant's version increases by
// one per call. The diff is applied to a copy first, so a diff that would
// leave a dangling edge changes nothing.
func (p *Pool) Apply(id string, diff Diff) (int64, error) {
	p.mu.Lock()
	v, ok := p.variants[id]
	if ok {
		p.touchLocked(v, p.now())
	}
	p.mu.Unlock()
	if !ok {
		return 0, notFound(id)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gone.Load() {
		return 0, notFound(id)
	}

	next := v.state.Clone()
	if err := applyDiff(next, diff); err != nil {
		return 0, sigilerr.With(err, sigilerr.FieldVariantID(id))
	}
	next.Version++
	v.state = next

	p.mu.Lock()
	p.measureLocked(v)
	p.enforceMemoryLocked(v)
	p.mu.Unlock()

	return next.Version, nil
}

// Promote removes the variant and returns a deep copy of its state. Only one
// Promote (or Discard) per variant succeeds. The caller is responsible for
// loading the returned state into the authoritative store.
func (p *Pool) Promote(id string) (*graph.State, error) {
	v, err := p.remove(id)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("variant promoted", "variant_id", id, "version", v.state.Version)
	return v.state.Clone(), nil
}

// Discard removes the variant without returning its state.
func (p *Pool) Discard(id string) error {
	_, err := p.remove(id)
	return err
}

// Clear discards every variant.
func (p *Pool) Clear() {
	p.mu.Lock()
	victims := slices.Collect(maps.Values(p.variants))
	clear(p.variants)
	p.mu.Unlock()

	for _, v := range victims {
		v.gone.Store(true)
	}
}

// List returns metadata for every variant, oldest first.
func (p *Pool) List() []Info {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Info, 0, len(p.variants))
	for _, v := range p.variants {
		out = append(out, v.info())
	}
	slices.SortFunc(out, func(a, b Info) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Compare reports what changed going from variant a to variant b. Nodes
// present in both are modified when their name or description differ;
// edges are only added or removed.
func (p *Pool) Compare(a, b string) (*Comparison, error) {
	sa, err := p.peek(a)
	if err != nil {
		return nil, err
	}
	sb, err := p.peek(b)
	if err != nil {
		return nil, err
	}

	c := &Comparison{
		Nodes: NodesDiff{Added: []string{}, Removed: []string{}, Modified: []string{}},
		Edges: EdgesDiff{Added: []string{}, Removed: []string{}},
	}
	for _, id := range slices.Sorted(maps.Keys(sb.Nodes)) {
		na, ok := sa.Nodes[id]
		switch {
		case !ok:
			c.Nodes.Added = append(c.Nodes.Added, id)
		case na.Name != sb.Nodes[id].Name || na.Description != sb.Nodes[id].Description:
			c.Nodes.Modified = append(c.Nodes.Modified, id)
		}
	}
	for _, id := range slices.Sorted(maps.Keys(sa.Nodes)) {
		if _, ok := sb.Nodes[id]; !ok {
			c.Nodes.Removed = append(c.Nodes.Removed, id)
		}
	}
	for _, id := range slices.Sorted(maps.Keys(sb.Edges)) {
		if _, ok := sa.Edges[id]; !ok {
			c.Edges.Added = append(c.Edges.Added, id)
		}
	}
	for _, id := range slices.Sorted(maps.Keys(sa.Edges)) {
		if _, ok := sb.Edges[id]; !ok {
			c.Edges.Removed = append(c.Edges.Removed, id)
		}
	}
	return c, nil
}

// MemoryUsage reports estimated bytes and per-tier counts.
func (p *Pool) MemoryUsage() MemoryUsage {
	p.mu.Lock()
	defer p.mu.Unlock()

	u := MemoryUsage{LimitBytes: p.cfg.MaxMemoryBytes, Variants: len(p.variants), Evicted: p.evicted}
	for _, v := range p.variants {
		u.TotalBytes += v.sizeBytes
		switch v.tier {
		case TierHot:
			u.Hot++
		case TierWarm:
			u.Warm++
		case TierCold:
			u.Cold++
		}
	}
	return u
}

// Rebalance re-evaluates tiers against the current time.
func (p *Pool) Rebalance() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rebalanceLocked(p.now())
}

func (p *Pool) peek(id string) (*graph.State, error) {
	p.mu.Lock()
	v, ok := p.variants[id]
	p.mu.Unlock()
	if !ok {
		return nil, notFound(id)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gone.Load() {
		return nil, notFound(id)
	}
	return v.state, nil
}

func (p *Pool) remove(id string) (*variant, error) {
	p.mu.Lock()
	v, ok := p.variants[id]
	delete(p.variants, id)
	p.mu.Unlock()
	if !ok {
		return nil, notFound(id)
	}

	// Wait for an in-flight Apply so the returned state is final.
	v.mu.Lock()
	defer v.mu.Unlock()
	v.gone.Store(true)
	return v, nil
}

func (p *Pool) touchLocked(v *variant, now time.Time) {
	p.seq++
	v.accessSeq = p.seq
	v.lastAccessed = now
}

func (p *Pool) measureLocked(v *variant) {
	v.version = v.state.Version
	v.nodeCount = len(v.state.Nodes)
	v.edgeCount = len(v.state.Edges)
	v.sizeBytes = estimateState(v.state)
}

// rebalanceLocked demotes idle variants and enforces the tier caps.
func (p *Pool) rebalanceLocked(now time.Time) {
	for _, v := range p.variants {
		if v.tier == TierHot && now.Sub(v.lastAccessed) > p.cfg.HotInactivity {
			v.tier = TierWarm
		}
	}
	if hot := p.byRecencyLocked(TierHot); len(hot) > p.cfg.MaxHot {
		for _, v := range hot[:len(hot)-p.cfg.MaxHot] {
			v.tier = TierWarm
		}
	}

	for _, v := range p.variants {
		if v.tier == TierWarm && now.Sub(v.lastAccessed) > p.cfg.WarmInactivity {
			v.tier = TierCold
		}
	}
	if warm := p.byRecencyLocked(TierWarm); len(warm) > p.cfg.MaxWarm {
		for _, v := range warm[:len(warm)-p.cfg.MaxWarm] {
			v.tier = TierCold
		}
	}

	p.enforceMemoryLocked(nil)
}

// enforceMemoryLocked evicts least-recently-accessed COLD variants while the
// pool is over its memory limit. HOT and WARM variants are never evicted.
func (p *Pool) enforceMemoryLocked(keep *variant) {
	if p.cfg.MaxMemoryBytes <= 0 {
		return
	}
	var total int64
	for _, v := range p.variants {
		total += v.sizeBytes
	}
	for _, v := range p.byRecencyLocked(TierCold) {
		if total <= p.cfg.MaxMemoryBytes {
			return
		}
		if v == keep {
			continue
		}
		delete(p.variants, v.id)
		v.gone.Store(true)
		total -= v.sizeBytes
		p.evicted++
		p.logger.Info("evicted cold variant",
			"variant_id", v.id,
			"size_bytes", v.sizeBytes,
			"pool_bytes", total,
			"limit_bytes", p.cfg.MaxMemoryBytes,
		)
	}
}

// byRecencyLocked returns the variants in tier, least recently accessed first.
func (p *Pool) byRecencyLocked(tier Tier) []*variant {
	var out []*variant
	for _, v := range p.variants {
		if v.tier == tier {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b *variant) int { return cmp.Compare(a.accessSeq, b.accessSeq) })
	return out
}

func (v *variant) info() Info {
	return Info{
		ID:           v.id,
		BaseSystemID: v.baseSystemID,
		Tier:         v.tier,
		Version:      v.version,
		NodeCount:    v.nodeCount,
		EdgeCount:    v.edgeCount,
		SizeBytes:    v.sizeBytes,
		CreatedAt:    v.createdAt,
		LastAccessed: v.lastAccessed,
	}
}

func notFound(id string) error {
	return sigilerr.New(sigilerr.CodeVariantNotFound, "variant not found", sigilerr.FieldVariantID(id))
}
