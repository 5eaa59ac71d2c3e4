package sink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ajsharma/form_tail/internal/events"
	"github.com/ajsharma/form_tail/internal/redact"
)

const (
	// DefaultQueueSize is the dispatcher's default buffer.
	DefaultQueueSize = 256

	sendTimeout = 10 * time.Second
)

// Dispatcher decouples event producers from sinks. Emit never blocks: events
// are queued and delivered by one worker, and dropped when the queue is full.
type Dispatcher struct {
	sink     Sink
	redactor *redact.Redactor
	logger   *zap.Logger

	ch      chan *events.Event
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	once    sync.Once
	dropped atomic.Int64
	failed  atomic.Int64
	sent    atomic.Int64
}

// NewDispatcher starts a dispatcher delivering to s. A nil redactor leaves
// params untouched.
func NewDispatcher(s Sink, redactor *redact.Redactor, queueSize int, logger *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		sink:     s,
		redactor: redactor,
		logger:   logger.Named("dispatcher"),
		ch:       make(chan *events.Event, queueSize),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Emit queues ev for delivery.
func (d *Dispatcher) Emit(ev *events.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return
	}

	select {
	case d.ch <- ev:
	default:
		d.dropped.Add(1)
		d.logger.Warn("queue full, dropping event", zap.String("event", ev.Name))
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.ch {
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev *events.Event) {
	out := *ev
	if d.redactor != nil {
		out.Params = d.redactor.RedactParams(ev.Params)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := d.sink.Send(ctx, &out); err != nil {
		d.failed.Add(1)
		d.logger.Warn("sink failed", zap.String("event", ev.Name), zap.Error(err))
		return
	}
	d.sent.Add(1)
	d.logger.Debug("event sent",
		zap.String("event", ev.Name),
		zap.String("site", ev.Site),
		zap.Any("params", out.Params))
}

// Stats reports delivered, failed and dropped counts.
func (d *Dispatcher) Stats() (sent, failed, dropped int64) {
	return d.sent.Load(), d.failed.Load(), d.dropped.Load()
}

// Close drains the queue, then closes the sink.
func (d *Dispatcher) Close() error {
	var err error
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.ch)
		d.mu.Unlock()

		<-d.done
		err = d.sink.Close()
	})
	return err
}
