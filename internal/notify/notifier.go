// Package notify dispatches operator notifications. Senders deliver to a
// concrete channel (a device push gateway, a chat webhook); the Notifier
// fans a message out to every sender, filtered by event type.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Sender is the interface each notification channel implements.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender.
	Name() string
}

// Notifier dispatches notifications to one or more Senders. Only events
// whose type appears in the allowed set are forwarded by Notify; an empty
// set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends to all senders when the event type passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "notify: event filtered out",
			slog.String("event", event),
		)
		return nil
	}
	return n.dispatch(ctx, title, message)
}

func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var firstErr error
	for _, sender := range n.senders {
		if err := sender.Send(ctx, title, message); err != nil {
			n.logger.Warn("notify: send failed",
				slog.String("sender", sender.Name()),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("notify: %s: %w", sender.Name(), err)
			}
		}
	}
	return firstErr
}
