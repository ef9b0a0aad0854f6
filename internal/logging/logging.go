// Package logging constructs the process-wide log sink the monitor
// writes to: a severity-filtered, size-rotated file target with a fixed
// line format. There is no package-level singleton; callers construct
// one with New and pass it to whatever needs it.
package logging

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where the log file lives and how it rotates.
type Config struct {
	// Path is the log file destination.
	Path string
	// Level is one of debug, info, warning, error, fatal.
	Level string
	// MaxSizeMB caps a single log file's size before it rotates. Zero
	// selects the default of 10 MiB.
	MaxSizeMB int
	// MaxBackups caps how many rotated files are kept. Zero selects the
	// default of 5.
	MaxBackups int
}

const (
	defaultMaxSizeMB  = 10
	defaultMaxBackups = 5
)

var levelByName = map[string]logrus.Level{
	"debug":   logrus.DebugLevel,
	"info":    logrus.InfoLevel,
	"warning": logrus.WarnLevel,
	"error":   logrus.ErrorLevel,
	"fatal":   logrus.FatalLevel,
}

// New builds a *logrus.Logger writing to a rotating file at cfg.Path,
// filtered at cfg.Level, one line per record in the form
// "YYYY-MM-DD HH:MM:SS.mmm [LEVEL] message".
func New(cfg Config) (*logrus.Logger, error) {
	level, ok := levelByName[cfg.Level]
	if !ok {
		return nil, fmt.Errorf("logging: unknown level %q", cfg.Level)
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = defaultMaxSizeMB
	}
	maxBackups := cfg.MaxBackups
	if maxBackups <= 0 {
		maxBackups = defaultMaxBackups
	}

	formatter := &lineFormatter{}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(formatter)
	logger.SetOutput(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	})
	logger.AddHook(&stderrHook{formatter: formatter})
	return logger, nil
}
