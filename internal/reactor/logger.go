package reactor

import "fmt"

// Logger is the logging collaborator the core reports through. Binaries adapt
// their own logger to it; the zero choice is NoOpLogger.
type Logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
}

// NoOpLogger discards everything.
type NoOpLogger struct{}

func (n *NoOpLogger) Debugf(format string, v ...any) {}
func (n *NoOpLogger) Infof(format string, v ...any)  {}
func (n *NoOpLogger) Warnf(format string, v ...any)  {}
func (n *NoOpLogger) Errorf(format string, v ...any) {}

// NewNoOpLogger creates a no-op logger
func NewNoOpLogger() Logger {
	return &NoOpLogger{}
}

// reactorLogger prefixes every line with the reactor it belongs to.
type reactorLogger struct {
	next   Logger
	prefix string
}

func withReactor(l Logger, id ReactorID) Logger {
	if l == nil {
		l = NewNoOpLogger()
	}
	if _, ok := l.(*NoOpLogger); ok {
		return l
	}
	return &reactorLogger{next: l, prefix: fmt.Sprintf("reactor=%s ", id)}
}

func (r *reactorLogger) Debugf(format string, v ...any) { r.next.Debugf(r.prefix+format, v...) }
func (r *reactorLogger) Infof(format string, v ...any)  { r.next.Infof(r.prefix+format, v...) }
func (r *reactorLogger) Warnf(format string, v ...any)  { r.next.Warnf(r.prefix+format, v...) }
func (r *reactorLogger) Errorf(format string, v ...any) { r.next.Errorf(r.prefix+format, v...) }
