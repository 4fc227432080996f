package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/sirupsen/logrus"
)

// MLogger is a logrus logger that prefixes every message with the caller's
// file and line.
type MLogger struct {
	*logrus.Logger
}

// Make builds a logger writing text records to out at the given level
// ("debug", "info", "warn", ...).
func Make(level string, out io.Writer) (*MLogger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	logger := logrus.New()
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	logger.SetOutput(out)
	return &MLogger{Logger: logger}, nil
}

// Default logs at info level to stderr.
func Default() *MLogger {
	logger, _ := Make("info", os.Stderr)
	return logger
}

// Discard drops everything; handy in tests.
func Discard() *MLogger {
	logger, _ := Make("panic", io.Discard)
	return logger
}

func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "???:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

func (l *MLogger) Error(args ...interface{}) {
	l.Logger.Error(fmt.Sprintf("%s, %s", caller(), fmt.Sprint(args...)))
}

func (l *MLogger) Errorf(format string, args ...interface{}) {
	l.Logger.Errorf(caller()+", "+format, args...)
}

func (l *MLogger) Warn(args ...interface{}) {
	l.Logger.Warn(fmt.Sprintf("%s, %s", caller(), fmt.Sprint(args...)))
}

func (l *MLogger) Warnf(format string, args ...interface{}) {
	l.Logger.Warnf(caller()+", "+format, args...)
}

func (l *MLogger) Info(args ...interface{}) {
	l.Logger.Info(fmt.Sprintf("%s, %s", caller(), fmt.Sprint(args...)))
}

func (l *MLogger) Infof(format string, args ...interface{}) {
	l.Logger.Infof(caller()+", "+format, args...)
}

func (l *MLogger) Debug(args ...interface{}) {
	l.Logger.Debug(fmt.Sprintf("%s, %s", caller(), fmt.Sprint(args...)))
}

func (l *MLogger) Debugf(format string, args ...interface{}) {
	l.Logger.Debugf(caller()+", "+format, args...)
}
