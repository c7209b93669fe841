package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSender is the "mock" provider: it renders the message to catch template
// errors and logs the envelope instead of delivering it.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender { return &LogSender{log: log} }

func (s *LogSender) Send(_ context.Context, msg Message) error {
	subject, _, err := Render(msg)
	if err != nil {
		return err
	}
	s.log.Info("email (mock provider)",
		zap.String("to", msg.To),
		zap.String("template", msg.Template),
		zap.String("subject", subject),
	)
	return nil
}
