package pool

// Logger is the small structured-logging surface Dispatcher needs. It is
// satisfied by internal/logging.Logger (a logrus wrapper) so this package
// never imports logrus directly — callers wire their own logger in via
// Options.Logger.
type Logger interface {
	WithField(key string, value any) Logger
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) WithField(string, any) Logger       { return nopLogger{} }
func (nopLogger) Debugf(string, ...any)              {}
func (nopLogger) Infof(string, ...any)               {}
func (nopLogger) Warnf(string, ...any)               {}
func (nopLogger) Errorf(string, ...any)              {}
