// Package logging holds the process-wide zap logger.
package logging

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls level and optional rotated file output.
type Config struct {
	Level      string `yaml:"level"`
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"` // megabytes
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
	Compress   bool   `yaml:"compress"`
}

var (
	mu     sync.RWMutex
	global *zap.SugaredLogger
)

// Init builds the global logger. Output goes to stderr unless Path is set,
// in which case it is written through a lumberjack rotator.
func Init(cfg Config) {
	sink := zapcore.AddSync(os.Stderr)
	var dirErr error
	if cfg.Path != "" {
		if dirErr = os.MkdirAll(filepath.Dir(cfg.Path), 0755); dirErr == nil {
			sink = zapcore.AddSync(&lumberjack.Logger{
				Filename:   cfg.Path,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			})
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	level := zapcore.InfoLevel
	if err := level.Set(cfg.Level); err != nil {
		level = zapcore.InfoLevel
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sink, level)
	l := zap.New(core).Sugar()

	mu.Lock()
	global = l
	mu.Unlock()

	if dirErr != nil {
		l.Warnf("Failed to create log directory, logging to stderr: %v", dirErr)
	}
}

// L returns the global logger, falling back to a development logger when
// Init has not been called (tests, library use).
func L() *zap.SugaredLogger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}
	dev, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return dev.Sugar()
}

// Named returns a child logger for one subsystem, e.g. Named("db").
func Named(component string) *zap.SugaredLogger {
	return L().Named(component)
}

// Set replaces the global logger. Tests use it to install zaptest observers.
func Set(l *zap.SugaredLogger) {
	mu.Lock()
	global = l
	mu.Unlock()
}

// Sync flushes buffered entries.
func Sync() error {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l == nil {
		return nil
	}
	return l.Sync()
}
