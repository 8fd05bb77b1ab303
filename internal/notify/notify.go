// Package notify tells interested parties that the stored blocks changed.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// BlocksChanged is emitted after a sync run has purged the previous generation.
type BlocksChanged struct {
	MeetingNumber string    `json:"meeting_number"`
	Version       int64     `json:"version"`
	Blocks        int       `json:"blocks"`
	Sessions      int       `json:"sessions"`
	At            time.Time `json:"at"`
}

// Observer receives change notifications.
type Observer interface {
	BlocksChanged(ctx context.Context, ev BlocksChanged) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev BlocksChanged) error

// BlocksChanged calls f.
func (f ObserverFunc) BlocksChanged(ctx context.Context, ev BlocksChanged) error { return f(ctx, ev) }

// Hub fans notifications out to registered observers. Observer errors are
// logged and never returned.
type Hub struct {
	mu        sync.RWMutex
	observers []Observer
	logger    *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger}
}

// Register adds an observer.
func (h *Hub) Register(o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, o)
}

// Notify delivers ev to every observer in registration order.
func (h *Hub) Notify(ctx context.Context, ev BlocksChanged) {
	h.mu.RLock()
	observers := append([]Observer(nil), h.observers...)
	h.mu.RUnlock()

	for _, o := range observers {
		if err := o.BlocksChanged(ctx, ev); err != nil {
			h.logger.Warn("observer failed", "err", err, "version", ev.Version)
		}
	}
}

type subscription struct {
	mu     sync.Mutex
	ch     chan BlocksChanged
	closed bool
}

func (s *subscription) BlocksChanged(_ context.Context, ev BlocksChanged) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	select {
	case s.ch <- ev:
	default:
	}
	return nil
}

// Subscribe returns a channel receiving every notification until cancel is
// called. Slow readers miss notifications rather than block the hub. Cancel
// unregisters the subscription.
func (h *Hub) Subscribe(buffer int) (<-chan BlocksChanged, func()) {
	sub := &subscription{ch: make(chan BlocksChanged, buffer)}
	h.Register(sub)
	return sub.ch, func() {
		sub.mu.Lock()
		sub.closed = true
		sub.mu.Unlock()
		h.unregister(sub)
	}
}

func (h *Hub) unregister(o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, cur := range h.observers {
		if cur == o {
			h.observers = append(h.observers[:i], h.observers[i+1:]...)
			return
		}
	}
}

