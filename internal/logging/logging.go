// Package logging centralizes zap logger construction so every component
// logs through a consistently configured, named sub-logger rather than
// constructing its own.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the root logger. debug enables human-readable, colorized
// development output; otherwise JSON production output is used, suited for
// the indexer and MCP server both running unattended.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// Component returns a named child logger, e.g. logger used by the planner
// logs every event under the "planner" name. base may be nil, in which
// case Component returns nil rather than panicking, so callers can thread
// an optional root logger straight through without a nil check of their
// own at every call site.
func Component(base *zap.Logger, name string) *zap.Logger {
	if base == nil {
		return nil
	}
	return base.Named(name)
}

// Nop returns a logger that discards everything, used by tests and by
// callers that don't care to configure logging.
func Nop() *zap.Logger {
	return zap.NewNop()
}
