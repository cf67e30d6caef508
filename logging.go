package main

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds the process logger: JSON in production, console colors in
// development, level overridable via LOG_LEVEL.
func newLogger(environment string) (*zap.Logger, error) {
	var config zap.Config
	if environment == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if lv := os.Getenv("LOG_LEVEL"); lv != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(lv)); err == nil {
			config.Level.SetLevel(level)
		}
	}
	return config.Build()
}
