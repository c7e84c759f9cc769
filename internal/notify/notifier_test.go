package notify

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name string
	sent []string
	err  error
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, title)
	return nil
}

func (s *recordingSender) Name() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestNotifyFiltersByEvent(t *testing.T) {
	sender := &recordingSender{name: "test"}
	notifier := NewNotifier([]Sender{sender}, []string{"risk.alert"}, testLogger())

	require.NoError(t, notifier.Notify(context.Background(), "risk.alert", "stop engaged", "body"))
	require.NoError(t, notifier.Notify(context.Background(), "trade.executed", "filled", "body"))

	assert.Equal(t, []string{"stop engaged"}, sender.sent)
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	sender := &recordingSender{name: "test"}
	notifier := NewNotifier([]Sender{sender}, nil, testLogger())

	require.NoError(t, notifier.Notify(context.Background(), "anything", "t", "m"))
	assert.Len(t, sender.sent, 1)
}

func TestNotifyReportsFirstError(t *testing.T) {
	failing := &recordingSender{name: "bad", err: errors.New("down")}
	working := &recordingSender{name: "good"}
	notifier := NewNotifier([]Sender{failing, working}, nil, testLogger())

	err := notifier.Notify(context.Background(), "e", "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	// The healthy sender still receives the message.
	assert.Len(t, working.sent, 1)
}

func TestPushSenderQueues(t *testing.T) {
	sender := NewPushSender(testLogger())

	require.NoError(t, sender.Send(context.Background(), "Device test", "hello"))
	queued := sender.Queued()
	require.Len(t, queued, 1)
	assert.Equal(t, "Device test", queued[0].Title)
	assert.Equal(t, "push", sender.Name())
}
