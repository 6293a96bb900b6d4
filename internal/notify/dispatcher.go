package notify

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"placement-service/internal/domain"

	"golang.org/x/sync/errgroup"
)

// package-level logger for notify; can be replaced by callers
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger sets the logger used by notify. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// Sink delivers one notification to one channel (pub/sub, log, outbox).
type Sink interface {
	Deliver(ctx context.Context, n domain.Notification) error
}

// Dispatcher queues notifications and fans each one out to every sink from a background worker.
// Notify never blocks the caller: when the queue is full the notification is dropped and logged.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	queue   chan domain.Notification

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(buffer int, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := &Dispatcher{
		sinks:   sinks,
		timeout: timeout,
		queue:   make(chan domain.Notification, buffer),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) Notify(_ context.Context, n domain.Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		logger.Warn("notify: dispatcher closed, dropping", slog.String("recipient", n.Recipient), slog.String("title", n.Title))
		return
	}
	select {
	case d.queue <- n:
	default:
		logger.Warn("notify: queue full, dropping", slog.String("recipient", n.Recipient), slog.String("title", n.Title))
	}
}

// Close stops accepting notifications and waits until the queued ones are delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n domain.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	var g errgroup.Group
	for _, sink := range d.sinks {
		sink := sink
		g.Go(func() error {
			if err := sink.Deliver(ctx, n); err != nil {
				logger.Warn("notify: delivery failed", slog.String("recipient", n.Recipient), slog.Any("err", err))
				return err
			}
			return nil
		})
	}
	_ = g.Wait()
}

// LogSink writes every notification to the package logger.
type LogSink struct{}

func (LogSink) Deliver(_ context.Context, n domain.Notification) error {
	logger.Info("notification",
		slog.String("recipient", n.Recipient),
		slog.String("title", n.Title),
		slog.String("message", n.Message),
		slog.String("link", n.Link),
	)
	return nil
}
