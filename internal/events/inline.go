package events

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"practice-ledger/internal/logger"
)

// InlineBus queues events in memory and hands them to a worker pool in the
// same process. Events still queued at shutdown are lost.
type InlineBus struct {
	ch      chan Event
	workers int

	mu     sync.RWMutex
	closed bool
}

func NewInlineBus(bufferSize, workers int) *InlineBus {
	if workers <= 0 {
		workers = 1
	}
	return &InlineBus{ch: make(chan Event, bufferSize), workers: workers}
}

func (b *InlineBus) Publish(ctx context.Context, evs ...Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for _, e := range evs {
		select {
		case b.ch <- e:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *InlineBus) Run(ctx context.Context, h Handler) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < b.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case e, ok := <-b.ch:
					if !ok {
						return nil
					}
					if err := h(ctx, e); err != nil {
						logger.Error("Event handler failed", "eventID", e.ID, "type", e.Type, "error", err)
					}
				}
			}
		})
	}
	return g.Wait()
}

// Close stops accepting events and lets Run drain what is queued.
func (b *InlineBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
	return nil
}
