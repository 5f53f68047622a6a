// internal/trigger/dispatcher.go
package trigger

import (
	"context"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	zlog "github.com/rs/zerolog/log"
)

// Dispatcher queues notifications from the HTTP server and hands them to
// a Handler on a single goroutine, so runs never overlap.
//
//   - Enqueue never blocks: a full queue is reported to the caller (503)
//   - Shutdown stops intake, drains what is queued, then returns
type Dispatcher struct {
	handler *Handler

	eventCh chan events.S3Event

	mu       sync.RWMutex // guards closed vs. sends on eventCh
	closed   bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewDispatcher returns a dispatcher with a queue of size queue (min 1).
func NewDispatcher(h *Handler, queue int) *Dispatcher {
	if queue < 1 {
		queue = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		handler: h,
		eventCh: make(chan events.S3Event, queue),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the worker loop.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.loop()
}

// Enqueue adds ev to the queue. It returns false when the queue is full
// or the dispatcher is shutting down.
func (d *Dispatcher) Enqueue(ev events.S3Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.eventCh <- ev:
		return true
	default:
		return false
	}
}

// Len returns the number of queued notifications.
func (d *Dispatcher) Len() int { return len(d.eventCh) }

// Shutdown closes the queue and waits for queued notifications to be
// processed. If ctx expires first, the in-flight run is canceled and
// the rest of the queue is dropped. Safe to call more than once.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.eventCh)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		zlog.Warn().Int("dropped", d.Len()).Msg("dispatcher: shutdown deadline reached, canceling")
		d.cancel()
		<-done
	}
	d.cancel()
}

// loop processes notifications until the queue is closed and empty.
func (d *Dispatcher) loop() {
	defer d.wg.Done()

	for ev := range d.eventCh {
		if d.ctx.Err() != nil {
			// canceled: drain without running
			continue
		}
		d.handler.Handle(d.ctx, ev)
	}
	zlog.Info().Msg("dispatcher exiting")
}
