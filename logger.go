package drainhub

// Logger specifies the interface for all log operations.
//
// *logrus.Logger satisfies it out of the box; the NOOP implementation is used
// until a real logger is set.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// NopLogger returns a Logger implementation that discards all log operations.
func NopLogger() Logger { return noopLogger{} }

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Warnf(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}
