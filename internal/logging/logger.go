// Package logging builds the process-wide zap logger.
package logging

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON production logger when env is "production" and a
// colored console logger otherwise.
func New(env string) *zap.Logger {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		log.Printf("failed to build zap logger, falling back to nop: %v", err)
		return zap.NewNop()
	}
	return logger
}

// StdLogger adapts a zap logger to *log.Logger for libraries that want one
// (gorm's logger writer).
func StdLogger(logger *zap.Logger) *log.Logger {
	return zap.NewStdLog(logger)
}
