package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/colinxr/notion-graph-view-sub001/internal/domain/shared"
)

// DefaultQueueSize bounds the background queue when none is configured.
const DefaultQueueSize = 256

// SubmitObserver receives background submission outcomes.
type SubmitObserver interface {
	BackgroundSubmitted(accepted bool)
}

// BackgroundPublisher takes events off the caller's path: Submit enqueues
// and returns immediately, a single worker publishes them on the bus in
// submission order.
type BackgroundPublisher struct {
	bus      Publisher
	queue    chan shared.DomainEvent
	logger   *zap.Logger
	observer SubmitObserver

	mu      sync.RWMutex
	closed  bool
	started bool
	group   *errgroup.Group
	cancel  context.CancelFunc
}

// NewBackgroundPublisher creates a publisher with a bounded queue. observer may be nil.
func NewBackgroundPublisher(bus Publisher, size int, logger *zap.Logger, observer SubmitObserver) *BackgroundPublisher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackgroundPublisher{
		bus:      bus,
		queue:    make(chan shared.DomainEvent, size),
		logger:   logger,
		observer: observer,
	}
}

// Start launches the worker. Events submitted before Start wait in the queue.
func (p *BackgroundPublisher) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	p.group, ctx = errgroup.WithContext(ctx)
	p.group.Go(func() error {
		return p.work(ctx)
	})
	p.logger.Info("background publisher started", zap.Int("capacity", cap(p.queue)))
}

// Submit enqueues an event without blocking. It reports false, and drops the
// event, when the queue is full or the publisher is shut down.
func (p *BackgroundPublisher) Submit(event shared.DomainEvent) bool {
	if event == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	accepted := false
	if !p.closed {
		select {
		case p.queue <- event:
			accepted = true
		default:
		}
	}
	if p.observer != nil {
		p.observer.BackgroundSubmitted(accepted)
	}
	if !accepted {
		p.logger.Warn("dropping background event",
			zap.String("event", event.EventName()),
			zap.String("aggregate_id", event.AggregateID()),
			zap.Bool("shut_down", p.closed),
			zap.Int("queued", len(p.queue)))
	}
	return accepted
}

// Pending returns the number of queued events.
func (p *BackgroundPublisher) Pending() int {
	return len(p.queue)
}

// Shutdown stops accepting events and waits for the worker to drain the
// queue. If ctx expires first the worker is cancelled and queued events are
// dropped.
func (p *BackgroundPublisher) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	group, cancel := p.group, p.cancel
	p.mu.Unlock()

	if group == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	select {
	case err := <-done:
		cancel()
		p.logger.Info("background publisher drained")
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

func (p *BackgroundPublisher) work(ctx context.Context) error {
	for {
		select {
		case ev, ok := <-p.queue:
			if !ok {
				return nil
			}
			p.bus.Publish(ctx, ev)
		case <-ctx.Done():
			if n := len(p.queue); n > 0 {
				p.logger.Warn("background publisher cancelled with queued events", zap.Int("dropped", n))
			}
			return nil
		}
	}
}
