package log

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// SlogLogger adapts a slog.Handler to Logger.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps handler with the stack trace formatter.
func NewSlogLogger(handler slog.Handler) *SlogLogger {
	if _, ok := handler.(*ErrFmtHandler); !ok {
		handler = WrapByErrFmtHandler(handler)
	}
	return &SlogLogger{logger: slog.New(handler)}
}

func (s *SlogLogger) Debug(msg string, fields ...any) { s.logger.Debug(msg, fields...) }
func (s *SlogLogger) Info(msg string, fields ...any) { s.logger.Info(msg, fields...) }
func (s *SlogLogger) Warn(msg string, fields ...any) { s.logger.Warn(msg, fields...) }

// Error logs at error level. A leading error value is moved under ErrAttrKey
// so ErrFmtHandler can attach its stack trace.
func (s *SlogLogger) Error(msg string, fields ...any) {
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			fields = append([]any{ErrAttr(err)}, fields[1:]...)
		}
	}
	s.logger.Error(msg, fields...)
}

func (s *SlogLogger) With(fields ...any) Logger {
	return &SlogLogger{logger: s.logger.With(fields...)}
}

func (s *SlogLogger) Enabled(ctx context.Context, level Level) bool {
	return s.logger.Enabled(ctx, slog.Level(level))
}

// SlogProvider implements LoggerProvider on top of a slog.Handler.
type SlogProvider struct {
	handler slog.Handler
	level   *slog.LevelVar
}

// NewSlogProvider returns a provider whose loggers share handler.
// The level set here is applied in addition to the handler's own level.
func NewSlogProvider(handler slog.Handler, level Level) *SlogProvider {
	lv := &slog.LevelVar{}
	lv.Set(slog.Level(level))
	return &SlogProvider{handler: &levelHandler{Handler: handler, level: lv}, level: lv}
}

func (p *SlogProvider) GetLogger() Logger { return NewSlogLogger(p.handler) }

func (p *SlogProvider) GetLoggerWithName(name string) Logger {
	return NewSlogLogger(p.handler).With(ComponentKey, name)
}

func (p *SlogProvider) SetLevel(level Level) { p.level.Set(slog.Level(level)) }

type levelHandler struct {
	slog.Handler
	level slog.Leveler
}

func (h *levelHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.level.Level() && h.Handler.Enabled(ctx, l)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{Handler: h.Handler.WithAttrs(attrs), level: h.level}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{Handler: h.Handler.WithGroup(name), level: h.level}
}

// ---- global provider ----

type providerHolder struct{ p LoggerProvider }

var global atomic.Pointer[providerHolder]

func init() {
	global.Store(&providerHolder{p: nopProvider{}})
}

// SetProvider replaces the process-wide logger provider.
// Passing nil installs a provider that discards everything.
func SetProvider(p LoggerProvider) {
	if p == nil {
		p = nopProvider{}
	}
	global.Store(&providerHolder{p: p})
}

// GetLogger returns the default logger of the installed provider.
func GetLogger() Logger { return global.Load().p.GetLogger() }

// GetLoggerWithName returns a component logger of the installed provider.
func GetLoggerWithName(name string) Logger { return global.Load().p.GetLoggerWithName(name) }

// NopLogger discards all records.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any) {}
func (NopLogger) Warn(string, ...any) {}
func (NopLogger) Error(string, ...any) {}
func (n NopLogger) With(...any) Logger { return n }
func (NopLogger) Enabled(context.Context, Level) bool { return false }

type nopProvider struct{}

func (nopProvider) GetLogger() Logger { return NopLogger{} }
func (nopProvider) GetLoggerWithName(string) Logger { return NopLogger{} }
func (nopProvider) SetLevel(Level) {}
