// Package logging wraps go.uber.org/zap behind a small interface so the
// rest of the core depends on a seam, not on zap directly (grounded on the
// pack's structured-logging idiom).
package logging

import "go.uber.org/zap"

// Logger is the structured logging surface every package in this core logs
// through. Fields are passed as alternating key/value pairs, mirroring
// zap's SugaredLogger calling convention.
type Logger interface {
	Debugw(msg string, kv ...any)
	Infow(msg string, kv ...any)
	Warnw(msg string, kv ...any)
	Errorw(msg string, kv ...any)
	With(kv ...any) Logger
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// New builds a production zap-backed Logger.
func New() (Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &zapLogger{s: z.Sugar()}, nil
}

// Must is New, panicking on error; used at process start where there is
// no sensible fallback.
func Must() Logger {
	l, err := New()
	if err != nil {
		panic("logging: failed to build zap logger: " + err.Error())
	}
	return l
}

func (l *zapLogger) Debugw(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Infow(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *zapLogger) Warnw(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Errorw(msg string, kv ...any) { l.s.Errorw(msg, kv...) }

func (l *zapLogger) With(kv ...any) Logger {
	return &zapLogger{s: l.s.With(kv...)}
}

type nopLogger struct{}

// Nop returns a Logger that discards everything, for tests.
func Nop() Logger { return nopLogger{} }

func (nopLogger) Debugw(string, ...any) {}
func (nopLogger) Infow(string, ...any)  {}
func (nopLogger) Warnw(string, ...any)  {}
func (nopLogger) Errorw(string, ...any) {}
func (n nopLogger) With(...any) Logger  { return n }
