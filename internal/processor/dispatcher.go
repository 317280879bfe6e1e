package processor

import (
	"context"
	"log/slog"
	"sync"

	"club-segment-series/internal/metrics"
)

type task struct {
	ledgerID int64
	event    *Event
}

// Dispatcher decouples webhook acknowledgement from processing: the
// transport handler records the ledger row, enqueues, and returns 200
// before the provider's delivery timeout while workers do the
// network-bound work.
//
// The queue is bounded so backpressure is observable rather than
// unbounded goroutine growth. A full queue fails the enqueue; the
// caller annotates the ledger row and the manual batch fetch remains
// the recovery path.
type Dispatcher struct {
	processor *Processor
	queue     chan task
	workers   int
	logger    *slog.Logger

	closeOnce sync.Once
}

// NewDispatcher creates a dispatcher with the given queue capacity
func NewDispatcher(p *Processor, queueSize, workers int) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		processor: p,
		queue:     make(chan task, queueSize),
		workers:   workers,
		logger:    slog.Default(),
	}
}

// Enqueue submits an event for background processing. Returns false
// when the queue is full.
func (d *Dispatcher) Enqueue(event *Event, ledgerID int64) bool {
	select {
	case d.queue <- task{ledgerID: ledgerID, event: event}:
		return true
	default:
		return false
	}
}

// QueueDepth returns the number of events waiting to be processed
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

// Run processes events until ctx is cancelled, then drains whatever is
// already queued before returning so accepted events are not lost on
// shutdown.
func (d *Dispatcher) Run(ctx context.Context) {
	metrics.DispatcherActive.Set(1)
	defer metrics.DispatcherActive.Set(0)

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx)
		}()
	}

	<-ctx.Done()
	d.closeOnce.Do(func() { close(d.queue) })
	wg.Wait()

	d.logger.Info("webhook dispatcher stopped")
}

func (d *Dispatcher) work(ctx context.Context) {
	for t := range d.queue {
		// Processing uses its own context: a shutdown drain should
		// still finish the event it already accepted
		d.processor.Process(context.WithoutCancel(ctx), t.event, t.ledgerID)
	}
}
