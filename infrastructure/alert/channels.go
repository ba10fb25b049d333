package alert

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"price-feed-go/infrastructure/logger"
)

// LogChannel writes alerts to the structured log at a level matching the alert.
type LogChannel struct {
	logger *logger.Logger
	name   string
}

func NewLogChannel(name string, l *logger.Logger) *LogChannel {
	if l == nil {
		l = logger.NewNop()
	}
	return &LogChannel{logger: l, name: name}
}

func (c *LogChannel) Send(a Alert) error {
	fields := make([]zap.Field, 0, len(a.Fields)+3)
	fields = append(fields,
		zap.String("alert_level", string(a.Level)),
		zap.String("symbol", a.Symbol),
		zap.Time("alert_time", a.Timestamp),
	)
	for k, v := range a.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	if ce := c.logger.Check(zapLevel(a.Level), a.Message); ce != nil {
		ce.Write(fields...)
	}
	return nil
}

func (c *LogChannel) Name() string { return c.name }

func zapLevel(l Level) zapcore.Level {
	switch l {
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarning:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}
