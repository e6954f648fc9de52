package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogNotifier writes dispatches to the log. The code is included only when
// exposeCode is set, which serve does outside production.
type LogNotifier struct {
	logger     logrus.FieldLogger
	exposeCode bool
}

func NewLogNotifier(logger logrus.FieldLogger, exposeCode bool) *LogNotifier {
	return &LogNotifier{logger: logger, exposeCode: exposeCode}
}

func (n *LogNotifier) Dispatch(_ context.Context, msg Message) error {
	entry := n.logger.WithFields(logrus.Fields{
		"application_id": msg.ApplicationID,
		"purpose":        msg.Purpose,
		"recipient":      msg.Recipient,
		"reference":      msg.Reference,
		"expires_at":     msg.ExpiresAt,
	})
	if n.exposeCode {
		entry = entry.WithField("code", msg.Code)
	}
	entry.Info("otp dispatched")
	return nil
}
