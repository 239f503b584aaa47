// Package logging builds the process-wide zap logger.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	Level   string
	Format  string // "json" or "console"
	Service string
}

// New builds a logger and returns the atomic level backing it so the level
// can be changed at runtime.
func New(opts Options) (*zap.Logger, zap.AtomicLevel) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	core := zapcore.NewCore(encoder(opts.Format), zapcore.Lock(os.Stdout), level)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
	if opts.Service != "" {
		logger = logger.Named(opts.Service)
	}
	return logger, level
}

// SetLevel applies a textual level to an existing atomic level. Unknown
// levels leave the current one untouched.
func SetLevel(level zap.AtomicLevel, text string) bool {
	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(text)); err != nil {
		return false
	}
	level.SetLevel(parsed)
	return true
}

func encoder(format string) zapcore.Encoder {
	if strings.EqualFold(format, "console") {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(cfg)
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(cfg)
}
