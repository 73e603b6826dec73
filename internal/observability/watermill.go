package observability

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// WatermillLogger adapts a zerolog.Logger to watermill.LoggerAdapter
type WatermillLogger struct {
	logger zerolog.Logger
}

var _ watermill.LoggerAdapter = WatermillLogger{}

// NewWatermillLogger wraps logger for use by Watermill publishers
func NewWatermillLogger(logger zerolog.Logger) WatermillLogger {
	return WatermillLogger{logger: logger.With().Str("component", "watermill").Logger()}
}

func (l WatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.logger.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l WatermillLogger) Info(msg string, fields watermill.LogFields) {
	l.logger.Info().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l WatermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.logger.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l WatermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.logger.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l WatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return WatermillLogger{logger: l.logger.With().Fields(map[string]interface{}(fields)).Logger()}
}
