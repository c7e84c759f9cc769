package notify

import (
	"context"
	"log/slog"
	"sync"
)

// PushSender queues push notifications for paired devices. Delivery to an
// actual push provider (APNs/FCM) happens out of process; this sender
// records what would be delivered so devices.notifyTest has an observable
// effect and tests can assert on it.
type PushSender struct {
	mu     sync.Mutex
	queued []QueuedPush
	logger *slog.Logger
}

// QueuedPush is one notification waiting for the push provider.
type QueuedPush struct {
	Title   string
	Message string
}

// NewPushSender creates a push sender.
func NewPushSender(logger *slog.Logger) *PushSender {
	return &PushSender{logger: logger.With(slog.String("component", "push_sender"))}
}

// Send implements Sender.
func (p *PushSender) Send(_ context.Context, title, message string) error {
	p.mu.Lock()
	p.queued = append(p.queued, QueuedPush{Title: title, Message: message})
	p.mu.Unlock()

	p.logger.Info("notify: push queued",
		slog.String("title", title),
	)
	return nil
}

// Name implements Sender.
func (p *PushSender) Name() string { return "push" }

// Queued returns a copy of the queued notifications.
func (p *PushSender) Queued() []QueuedPush {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]QueuedPush, len(p.queued))
	copy(out, p.queued)
	return out
}
