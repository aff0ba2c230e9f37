// Package logging builds the zap loggers shared by every worksite component.
package logging

import (
	"go.uber.org/zap"
)

// Config holds logging configuration.
type Config struct {
	Level       string            `json:"level"`
	Format      string            `json:"format"` // "json" or "console"
	OutputPath  string            `json:"output_path"`
	Fields      map[string]string `json:"fields"`
	Development bool              `json:"development"`
}

// New creates a structured logger from config. Unknown levels fall back to info.
func New(config Config) (*zap.Logger, error) {
	var zapConfig zap.Config
	if config.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(config.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level

	if config.Format == "console" {
		zapConfig.Encoding = "console"
	} else {
		zapConfig.Encoding = "json"
	}
	if config.OutputPath != "" {
		zapConfig.OutputPaths = []string{config.OutputPath}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	fields := make([]zap.Field, 0, len(config.Fields))
	for k, v := range config.Fields {
		fields = append(fields, zap.String(k, v))
	}
	return logger.With(fields...), nil
}

// OrNop returns logger, or a no-op logger when it is nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// Component scopes logger to a named component.
func Component(logger *zap.Logger, name string) *zap.Logger {
	return OrNop(logger).With(zap.String("component", name))
}
