// Package logging builds the zap logger shared by the loader and its tools.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the log level and an optional rotating log file.
type Config struct {
	Level       string `yaml:"level" toml:"level"`
	Logfile     string `yaml:"logfile" toml:"logfile"`
	MaxSize     int    `yaml:"max_log_size" toml:"max_log_size"` // megabytes
	MaxAge      int    `yaml:"max_log_age" toml:"max_log_age"`   // days
	Development bool   `yaml:"development" toml:"development"`
}

// New returns a logger writing JSON to c.Logfile through lumberjack, or a
// console logger on stderr when no log file is set.
func New(c Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if c.Level != "" {
		if err := level.UnmarshalText([]byte(c.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
		}
	}

	var (
		encoder zapcore.Encoder
		sink    zapcore.WriteSyncer
	)
	if c.Logfile == "" {
		encCfg := zap.NewProductionEncoderConfig()
		if c.Development {
			encCfg = zap.NewDevelopmentEncoderConfig()
		}
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
		sink = zapcore.Lock(os.Stderr)
	} else {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename: c.Logfile,
			MaxSize:  c.MaxSize,
			MaxAge:   c.MaxAge,
		})
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if c.Development {
		opts = append(opts, zap.Development())
	}
	return zap.New(zapcore.NewCore(encoder, sink, level), opts...), nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
