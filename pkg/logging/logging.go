// Package logging supplies a global, structured logger for the sensor and
// collector binaries. It wraps the standard library's log/slog and follows
// the context-field pattern used throughout this module: callers attach
// fields to a context with NewContext and retrieve an enriched logger with
// WithContext, so a request/frame/session id picked up early in a call
// chain shows up on every subsequent log line without threading a logger
// value through every function signature.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

type loggingConfig struct {
	enableCaller bool
	output       io.Writer
}

// Option configures Init.
type Option func(*loggingConfig)

// WithOutput sets the log output. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(lc *loggingConfig) { lc.output = w }
}

// WithCaller toggles caller (file:line) annotation on every record.
func WithCaller(b bool) Option {
	return func(lc *loggingConfig) { lc.enableCaller = b }
}

// Init initializes the global logger. encoding selects "json" for machine
// consumption or "logfmt" for console output. name/version are attached as
// static fields to every record, e.g. the binary name and build version.
func Init(name, version, logLevel, encoding string, opts ...Option) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("unsupported log level %q: %w", logLevel, err)
	}

	cfg := &loggingConfig{enableCaller: true, output: os.Stdout}
	for _, opt := range opts {
		opt(cfg)
	}

	replaceAttr := func(groups []string, a slog.Attr) slog.Attr {
		switch a.Key {
		case slog.TimeKey:
			a.Key = "ts"
		case slog.LevelKey:
			a.Value = slog.StringValue(strings.ToLower(a.Value.String()))
		case slog.SourceKey:
			if src, ok := a.Value.Any().(*slog.Source); ok {
				dir, file := filepath.Split(src.File)
				a.Value = slog.StringValue(fmt.Sprintf("%s/%s:%d", filepath.Base(dir), file, src.Line))
			}
			a.Key = "caller"
		}
		return a
	}

	hopts := &slog.HandlerOptions{Level: level, AddSource: cfg.enableCaller, ReplaceAttr: replaceAttr}

	var handler slog.Handler
	switch strings.ToLower(encoding) {
	case "json":
		handler = slog.NewJSONHandler(cfg.output, hopts)
	case "logfmt", "":
		handler = slog.NewTextHandler(cfg.output, hopts)
	default:
		return fmt.Errorf("unknown log encoding %q", encoding)
	}

	logger := slog.New(handler).With("name", name, "version", version)
	slog.SetDefault(logger)
	return nil
}

// Logger returns the current global logger.
func Logger() *slog.Logger {
	return slog.Default()
}

type loggerKeyType int

const fieldsKey loggerKeyType = 0

type loggerFields struct {
	mu     *sync.RWMutex
	fields map[string]any
}

func newLoggerFields() loggerFields {
	return loggerFields{mu: &sync.RWMutex{}, fields: make(map[string]any)}
}

func getFields(ctx context.Context) (loggerFields, bool) {
	lf, ok := ctx.Value(fieldsKey).(loggerFields)
	return lf, ok
}

// NewContext returns a context carrying additional key/value log fields,
// merged with any fields already present on the parent context.
func NewContext(ctx context.Context, kv ...any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	newFields := newLoggerFields()
	if lf, ok := getFields(ctx); ok {
		lf.mu.RLock()
		for k, v := range lf.fields {
			newFields.fields[k] = v
		}
		lf.mu.RUnlock()
	}
	if len(kv) >= 2 && len(kv)%2 == 0 {
		for i := 1; i < len(kv); i += 2 {
			key, ok := kv[i-1].(string)
			if !ok {
				continue
			}
			newFields.fields[key] = kv[i]
		}
	}
	return context.WithValue(ctx, fieldsKey, newFields)
}

// WithContext returns the global logger enriched with fields attached via
// NewContext, falling back to the bare global logger if none are set.
func WithContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return Logger()
	}
	lf, ok := getFields(ctx)
	if !ok {
		return Logger()
	}

	lf.mu.RLock()
	keys := make([]string, 0, len(lf.fields))
	for k := range lf.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k, lf.fields[k])
	}
	lf.mu.RUnlock()

	return Logger().With(args...)
}
