package alerting

import (
	"context"

	"go.uber.org/zap"

	"marketplace-risk-engine/internal/domain/alert"
)

// LogSMSNotifier is the stand-in phone gateway: it records what would
// have been sent. Swap in a real provider by implementing SMSNotifier.
type LogSMSNotifier struct {
	logger *zap.Logger
}

// NewLogSMSNotifier creates the logging notifier.
func NewLogSMSNotifier(logger *zap.Logger) *LogSMSNotifier {
	return &LogSMSNotifier{logger: logger}
}

var _ SMSNotifier = (*LogSMSNotifier)(nil)

// SendAlert logs the alert that a real gateway would deliver.
func (n *LogSMSNotifier) SendAlert(_ context.Context, rta *alert.RealTimeAlert) error {
	n.logger.Info("sms notification",
		zap.String("alert_id", rta.AlertID.String()),
		zap.String("severity", string(rta.Severity)),
		zap.String("title", rta.Title),
		zap.String("user_id", rta.UserID))
	return nil
}
