package notify

import (
	"context"
	"time"

	"github.com/ajprasad1994/opsBuddy/pkg/log"
)

// DefaultQueueSize bounds the number of events waiting for delivery.
const DefaultQueueSize = 256

// Dispatcher decouples event producers from publisher I/O. Producers such as
// circuit breaker listeners call Enqueue, which never blocks; Run delivers
// events to every publisher in order.
type Dispatcher struct {
	publishers []Publisher
	queue      chan Event
	timeout    time.Duration
	logger     log.Logger
}

// NewDispatcher creates a dispatcher. timeout bounds each Publish call.
func NewDispatcher(logger log.Logger, queueSize int, timeout time.Duration, publishers ...Publisher) *Dispatcher {
	if logger == nil {
		logger = log.NewNop()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		publishers: publishers,
		queue:      make(chan Event, queueSize),
		timeout:    timeout,
		logger:     logger.With(log.String(log.FieldComponent, "notify")),
	}
}

// Enqueue schedules ev for delivery, returning ErrQueueFull instead of blocking.
func (d *Dispatcher) Enqueue(ev Event) error {
	if d == nil || len(d.publishers) == 0 {
		return nil
	}
	select {
	case d.queue <- ev:
		return nil
	default:
		d.logger.Warn("dropping event, queue full",
			log.String("event_type", ev.Type),
			log.String(log.FieldService, ev.Service),
		)
		return ErrQueueFull
	}
}

// Run delivers queued events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	for _, p := range d.publishers {
		pctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := p.Publish(pctx, ev)
		cancel()
		if err != nil {
			d.logger.Warn("event delivery failed",
				log.String("event_type", ev.Type),
				log.String(log.FieldService, ev.Service),
				log.Error(err),
			)
		}
	}
}
