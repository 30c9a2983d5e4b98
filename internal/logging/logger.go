// Package logging wraps logrus: a small Logger type holding a
// *logrus.Logger, configured from a level string, doing field-based
// structured logging instead of Printf string interpolation.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/Gearlay/workerpool/pool"
)

// Logger wraps a *logrus.Logger (or a logrus.Entry carrying fields) and
// satisfies pool.Logger without pool ever importing logrus directly.
type Logger struct {
	entry *logrus.Entry
}

// New builds a Logger writing text-formatted, field-structured output to
// stdout at the given level ("trace", "debug", "info", "warn"/"warning",
// "error", "fatal"; anything else defaults to info).
func New(level string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	l.SetLevel(parseLevel(level))
	return &Logger{entry: logrus.NewEntry(l)}
}

func parseLevel(level string) logrus.Level {
	switch level {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// WithField returns a Logger carrying an additional structured field,
// satisfying pool.Logger.
func (l *Logger) WithField(key string, value any) pool.Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...any) { l.entry.Infof(format, args...) }

// Warnf logs at warn level.
func (l *Logger) Warnf(format string, args ...any) { l.entry.Warnf(format, args...) }

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }
