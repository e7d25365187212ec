package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	texterrors "github.com/YuminosukeSato/textexplain/pkg/errors"
)

// ZerologLogger adapts zerolog.Logger to Logger.
// It is the backend used by the textexplain CLI.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger creates a logger writing to w (stderr when nil).
// When console is true records are rendered with zerolog.ConsoleWriter.
func NewZerologLogger(w io.Writer, level Level, console bool) *ZerologLogger {
	if w == nil {
		w = os.Stderr
	}
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(w).Level(toZerologLevel(level)).With().Timestamp().Logger()
	return &ZerologLogger{logger: zl}
}

func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func (z *ZerologLogger) Debug(msg string, fields ...any) { z.emit(z.logger.Debug(), msg, fields) }
func (z *ZerologLogger) Info(msg string, fields ...any) { z.emit(z.logger.Info(), msg, fields) }
func (z *ZerologLogger) Warn(msg string, fields ...any) { z.emit(z.logger.Warn(), msg, fields) }

// Error logs at error level. A leading error value is attached with its
// cockroachdb stack trace.
func (z *ZerologLogger) Error(msg string, fields ...any) {
	ev := z.logger.Error()
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			ev = ev.Err(err)
			if st := extractStacktrace(err); st != "" {
				ev = ev.Str(StacktraceAttrKey, st)
			}
			fields = fields[1:]
		}
	}
	z.emit(ev, msg, fields)
}

func (z *ZerologLogger) emit(ev *zerolog.Event, msg string, fields []any) {
	if ev == nil {
		return
	}
	ev.Fields(normalizeFields(fields)).Msg(msg)
}

func (z *ZerologLogger) With(fields ...any) Logger {
	return &ZerologLogger{logger: z.logger.With().Fields(normalizeFields(fields)).Logger()}
}

func (z *ZerologLogger) Enabled(_ context.Context, level Level) bool {
	return z.logger.GetLevel() <= toZerologLevel(level)
}

// RouteWarnings sends library warnings (ConvergenceWarning,
// UndefinedMetricWarning and friends) to this logger as structured records.
func (z *ZerologLogger) RouteWarnings() {
	zl := z.logger
	texterrors.SetZerologWarnFunc(func(w error) {
		ev := zl.Warn()
		if m, ok := w.(zerolog.LogObjectMarshaler); ok {
			ev = ev.EmbedObject(m)
		}
		ev.Msg(w.Error())
	})
}

// normalizeFields turns key/value pairs into a map zerolog can encode.
// Keys that are not strings are formatted with %v, a dangling key is dropped.
func normalizeFields(fields []any) map[string]any {
	out := make(map[string]any, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", fields[i])
		}
		if err, ok := fields[i+1].(error); ok {
			out[key] = err.Error()
			continue
		}
		out[key] = fields[i+1]
	}
	return out
}

// ZerologProvider implements LoggerProvider on top of a single zerolog root.
type ZerologProvider struct {
	root *ZerologLogger
}

// NewZerologProvider returns a provider backed by NewZerologLogger(w, level, console).
func NewZerologProvider(w io.Writer, level Level, console bool) *ZerologProvider {
	return &ZerologProvider{root: NewZerologLogger(w, level, console)}
}

func (p *ZerologProvider) GetLogger() Logger { return p.root }

func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	return p.root.With(ComponentKey, name)
}

func (p *ZerologProvider) SetLevel(level Level) {
	p.root.logger = p.root.logger.Level(toZerologLevel(level))
}

// Root returns the underlying ZerologLogger.
func (p *ZerologProvider) Root() *ZerologLogger { return p.root }
