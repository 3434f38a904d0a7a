package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes messages to the log instead of an external channel.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(_ context.Context, to Recipient, msg Message) error {
	if !to.Reachable() {
		return ErrUnreachable
	}
	n.log.Info("notification",
		zap.String("patient_id", to.PatientID.String()),
		zap.String("phone", to.Phone),
		zap.String("email", to.Email),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
