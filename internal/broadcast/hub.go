// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package broadcast fans graph change events out to live subscribers and,
// optionally, to other processes through Redis.
package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/sigil-dev/ontograph/internal/graph"
)

// DefaultBuffer is the per-subscriber queue length used when Subscribe is
// given a non-positive buffer.
const DefaultBuffer = 64

// Message is one change event tagged with the scope it happened in.
type Message struct {
	WorkspaceID string      `json:"workspace_id"`
	SystemID    string      `json:"system_id"`
	Event       graph.Event `json:"event"`
	// Origin identifies the hub that first published the message.
	Origin string `json:"origin,omitempty"`
}

// Publisher forwards messages beyond this process.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

type subscriber struct {
	workspaceID string
	systemID    string
	ch          chan Message
}

// Hub delivers messages to in-process subscribers. Publish never blocks: a
// subscriber whose queue is full misses the message.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	closed bool

	dropped atomic.Int64

	// outbound feeds the optional remote publisher.
	outbound  chan Message
	publisher Publisher
	done      chan struct{}

	origin string
	logger *slog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithPublisher relays every published message to p from a background
// goroutine. queue bounds the number of pending remote messages.
func WithPublisher(p Publisher, queue int) HubOption {
	return func(h *Hub) {
		if queue <= 0 {
			queue = DefaultBuffer
		}
		h.publisher = p
		h.outbound = make(chan Message, queue)
	}
}

func WithLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = logger }
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subs:   make(map[int]*subscriber),
		done:   make(chan struct{}),
		origin: uuid.NewString(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.publisher != nil {
		go h.relay()
	} else {
		close(h.done)
	}
	return h
}

// Subscribe registers a subscriber for one scope. Empty workspaceID and
// systemID match every scope. The returned cancel function is idempotent and
// closes the channel.
func (h *Hub) Subscribe(workspaceID, systemID string, buffer int) (<-chan Message, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &subscriber{workspaceID: workspaceID, systemID: systemID, ch: make(chan Message, buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub.ch)
			}
		})
	}
}

// Publish delivers msg to every matching subscriber without blocking.
func (h *Hub) Publish(msg Message) {
	if msg.Origin == "" {
		msg.Origin = h.origin
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	h.deliverLocked(msg)
	if h.outbound != nil {
		select {
		case h.outbound <- msg:
		default:
			h.dropped.Add(1)
		}
	}
}

// Deliver hands msg to local subscribers only. It is used for messages that
// arrived from a remote publisher and must not be relayed back; messages this
// hub published itself are ignored.
func (h *Hub) Deliver(msg Message) {
	if msg.Origin == h.origin {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.closed {
		h.deliverLocked(msg)
	}
}

func (h *Hub) deliverLocked(msg Message) {
	for _, sub := range h.subs {
		if !sub.matches(msg) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			h.dropped.Add(1)
		}
	}
}

// Listener adapts the hub into a graph listener for one scope. It is safe to
// run under the graph store's write lock.
func (h *Hub) Listener(workspaceID, systemID string) graph.Listener {
	return func(ev graph.Event) {
		h.Publish(Message{WorkspaceID: workspaceID, SystemID: systemID, Event: ev})
	}
}

// Origin returns the ID stamped on messages this hub publishes.
func (h *Hub) Origin() string { return h.origin }

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a queue was full.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Close closes every subscriber channel, drains the relay, and closes the
// publisher. Later Publish calls are no-ops.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
	if h.outbound != nil {
		close(h.outbound)
	}
	h.mu.Unlock()

	<-h.done
	if h.publisher != nil {
		return h.publisher.Close()
	}
	return nil
}

func (h *Hub) relay() {
	defer close(h.done)
	for msg := range h.outbound {
		if err := h.publisher.Publish(context.Background(), msg); err != nil {
			h.logger.Warn("broadcast relay failed",
				"error", err,
				"workspace_id", msg.WorkspaceID,
				"system_id", msg.SystemID,
				"kind", msg.Event.Kind,
			)
		}
	}
}

func (s *subscriber) matches(msg Message) bool {
	if s.workspaceID != "" && s.workspaceID != msg.WorkspaceID {
		return false
	}
	return s.systemID == "" || s.systemID == msg.SystemID
}
