package notifier_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibast-solutions/ms-go-account/app/notifier"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaNotifier(t *testing.T) {
	expiresAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := notifier.Message{Email: "a@x.com", Token: "tok en", ExpiresAt: expiresAt}

	tests := []struct {
		name     string
		send     func(n *notifier.KafkaNotifier) error
		wantType notifier.EventType
		wantLink string
	}{
		{
			name:     "verification",
			send:     func(n *notifier.KafkaNotifier) error { return n.SendVerification(context.Background(), msg) },
			wantType: notifier.EventVerifyEmail,
			wantLink: "https://app.example.com/auth/verify?token=tok+en",
		},
		{
			name:     "password reset",
			send:     func(n *notifier.KafkaNotifier) error { return n.SendPasswordReset(context.Background(), msg) },
			wantType: notifier.EventPasswordReset,
			wantLink: "https://app.example.com/auth/reset-password?token=tok+en",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writer := &fakeWriter{}
			n := notifier.NewKafkaNotifier(writer, "https://app.example.com/")

			require.NoError(t, tt.send(n))
			require.Len(t, writer.messages, 1)
			assert.Equal(t, "a@x.com", string(writer.messages[0].Key))

			var event notifier.Event
			require.NoError(t, json.Unmarshal(writer.messages[0].Value, &event))
			assert.Equal(t, tt.wantType, event.Type)
			assert.Equal(t, "a@x.com", event.Email)
			assert.Equal(t, "tok en", event.Token)
			assert.Equal(t, tt.wantLink, event.Link)
			assert.True(t, expiresAt.Equal(event.ExpiresAt))
		})
	}
}

func TestKafkaNotifier_WriteError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	n := notifier.NewKafkaNotifier(writer, "https://app.example.com")

	err := n.SendVerification(context.Background(), notifier.Message{Email: "a@x.com", Token: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")

	require.NoError(t, n.Close())
	assert.True(t, writer.closed)
}

func TestLogNotifier(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	n := notifier.NewLogNotifier("https://app.example.com")
	require.NoError(t, n.SendPasswordReset(context.Background(), notifier.Message{Email: "a@x.com", Token: "secret"}))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "a@x.com", entry.Data["email"])
	assert.NotContains(t, entry.Data, "link")
}
