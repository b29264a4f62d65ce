package audit

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapSink writes events as structured log entries. Failures and violations are
// logged at warn, everything else at info.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger.With(zap.String("component", "audit"))}
}

func (s *ZapSink) Emit(_ context.Context, event Event) {
	fields := []zap.Field{
		zap.String("kind", string(event.Kind)),
		zap.String("subject", event.Subject),
		zap.Time("event_time", event.Timestamp),
		zap.Bool("success", event.Success),
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	if len(event.Metadata) > 0 {
		fields = append(fields, zap.Object("metadata", stringMap(event.Metadata)))
	}

	level := zapcore.InfoLevel
	if !event.Success || event.Kind == KindAccountLocked {
		level = zapcore.WarnLevel
	}
	if ce := s.logger.Check(level, "audit event"); ce != nil {
		ce.Write(fields...)
	}
}

type stringMap map[string]string

func (m stringMap) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for k, v := range m {
		enc.AddString(k, v)
	}
	return nil
}
