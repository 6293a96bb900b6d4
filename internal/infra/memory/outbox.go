package memory

import (
	"context"
	"sync"

	"placement-service/internal/domain"
)

// Outbox records notifications in memory. It serves as the notification sink for local runs and lets
// tests assert on fan-out.
type Outbox struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) Notify(_ context.Context, n domain.Notification) {
	o.mu.Lock()
	o.sent = append(o.sent, n)
	o.mu.Unlock()
}

// Deliver satisfies notify.Sink.
func (o *Outbox) Deliver(ctx context.Context, n domain.Notification) error {
	o.Notify(ctx, n)
	return nil
}

// Sent returns a copy of everything recorded so far.
func (o *Outbox) Sent() []domain.Notification {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.Notification(nil), o.sent...)
}

// For returns the notifications addressed to one recipient.
func (o *Outbox) For(recipient string) []domain.Notification {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []domain.Notification
	for _, n := range o.sent {
		if n.Recipient == recipient {
			out = append(out, n)
		}
	}
	return out
}
