package realtime

import (
	"context"
	"sync"
)

// Hub is an in-process Sync used by the memory store and tests.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	closed bool
}

type subscription struct {
	path string
	out  chan ChangeEvent

	mu      sync.Mutex
	pending []ChangeEvent
	wake    chan struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*subscription]struct{})}
}

func (h *Hub) Publish(ctx context.Context, event ChangeEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		if matches(sub.path, event) {
			sub.enqueue(event)
		}
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, path string) (<-chan ChangeEvent, error) {
	sub := &subscription{
		path: path,
		out:  make(chan ChangeEvent),
		wake: make(chan struct{}, 1),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.out)
		return sub.out, nil
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		defer close(sub.out)
		defer h.remove(sub)
		sub.pump(ctx)
	}()

	return sub.out, nil
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *Hub) remove(sub *subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// enqueue never blocks the publisher; slow subscribers buffer.
func (s *subscription) enqueue(event ChangeEvent) {
	s.mu.Lock()
	s.pending = append(s.pending, event)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) pump(ctx context.Context) {
	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, event := range batch {
			select {
			case s.out <- event:
			case <-ctx.Done():
				return
			}
		}

		if len(batch) > 0 {
			continue
		}

		select {
		case <-s.wake:
		case <-ctx.Done():
			return
		}
	}
}
