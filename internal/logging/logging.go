// Package logging provides the structured logger and per-stage timing
// helper every pipeline component logs through.
package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production zap.Logger at the given level (DEBUG, INFO,
// WARN, or ERROR; defaults to INFO on an unrecognized value).
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// TimedStage logs "stage started" immediately and returns a function the
// caller defers with the stage's outcome error (nil on success); the
// deferred call logs "stage completed" or "stage failed" with dur_ms.
func TimedStage(logger *zap.Logger, stage string, fields ...zap.Field) func(*error) {
	start := time.Now()
	logger.Info("stage started", append([]zap.Field{zap.String("stage", stage)}, fields...)...)

	return func(errPtr *error) {
		dur := time.Since(start)
		allFields := append([]zap.Field{
			zap.String("stage", stage),
			zap.Int64("dur_ms", dur.Milliseconds()),
		}, fields...)

		if errPtr != nil && *errPtr != nil {
			logger.Error("stage failed", append(allFields, zap.Error(*errPtr))...)
			return
		}
		logger.Info("stage completed", allFields...)
	}
}
