package notifier

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogNotifier only logs deliveries. It is used when no broker is configured;
// links are logged at debug level so local setups can follow them.
type LogNotifier struct {
	appOrigin string
}

func NewLogNotifier(appOrigin string) *LogNotifier {
	return &LogNotifier{appOrigin: appOrigin}
}

func (n *LogNotifier) SendVerification(_ context.Context, msg Message) error {
	n.log(newEvent(EventVerifyEmail, n.appOrigin, msg))
	return nil
}

func (n *LogNotifier) SendPasswordReset(_ context.Context, msg Message) error {
	n.log(newEvent(EventPasswordReset, n.appOrigin, msg))
	return nil
}

func (n *LogNotifier) log(event Event) {
	entry := logrus.WithFields(logrus.Fields{
		"type":       event.Type,
		"email":      event.Email,
		"expires_at": event.ExpiresAt,
	})
	entry.Info("Mail delivery skipped, no broker configured")
	entry.WithField("link", event.Link).Debug("Mail link")
}
