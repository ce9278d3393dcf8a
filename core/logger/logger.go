// Package logger provides the process-wide structured logger: one flat JSON or
// key=value line per event, with bot, session and update ids pulled from the
// context.
package logger

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/flowbot/core/buildinfo"
	coreconfig "github.com/m3rciful/flowbot/core/config"
)

const (
	defaultSampleKeep   = 1
	defaultSampleWindow = 50
)

var (
	initOnce   sync.Once
	shutdownMu sync.Mutex
	closed     bool

	logWriter  *lineWriter
	logClosers []io.Closer

	levelVar slog.LevelVar

	debugSampler  = newKeyedSampler(defaultSampleKeep, defaultSampleWindow)
	traceOverride bool

	// L is the base logger; component loggers below are derived from it.
	L *slog.Logger

	// DB logs database connection events.
	DB *slog.Logger
	// MIG logs schema migration events.
	MIG *slog.Logger
	// SEED logs bot definition seeding.
	SEED *slog.Logger
	// TG logs Telegram transport events.
	TG *slog.Logger
	// TWire logs Telegram wiring steps such as bot registration and webhook setup.
	TWire *slog.Logger
	// ENG logs conversation engine decisions.
	ENG *slog.Logger
	// SES logs session lifecycle changes.
	SES *slog.Logger
	// STORE logs repository activity.
	STORE *slog.Logger
	// KV logs valkey client and lock events.
	KV *slog.Logger
)

// Until InitLogger runs everything is discarded, so packages can log
// unconditionally from tests and tools.
func init() {
	setBase(slog.New(slog.DiscardHandler))
}

func setBase(base *slog.Logger) {
	L = base
	DB = base.With("component", "db")
	MIG = base.With("component", "db.migrate")
	SEED = base.With("component", "db.seed")
	TG = base.With("component", "tg")
	TWire = base.With("component", "tg.wire")
	ENG = base.With("component", "engine")
	SES = base.With("component", "session")
	STORE = base.With("component", "store")
	KV = base.With("component", "valkey")
}

// settings is the logging section of the config after defaults are applied.
type settings struct {
	format  logFormat
	order   []string
	level   slog.Level
	keep    int
	window  int
	stacks  bool
	profile string
}

func settingsFrom(cfg *coreconfig.Config) settings {
	s := settings{
		format:  formatJSON,
		order:   append([]string(nil), defaultKeyOrder...),
		level:   slog.LevelInfo,
		keep:    defaultSampleKeep,
		window:  defaultSampleWindow,
		profile: "prod",
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}

	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}

	if raw := strings.TrimSpace(lc.KeysOrder); raw != "" && raw != "default" {
		var order []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				order = append(order, k)
			}
		}
		if len(order) > 0 {
			s.order = order
		}
	}

	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		s.level = slog.LevelDebug
	case "warn", "warning":
		s.level = slog.LevelWarn
	case "error":
		s.level = slog.LevelError
	}

	if raw := strings.TrimSpace(lc.DebugSample); raw != "" {
		s.keep, s.window = parseSampleRatio(raw)
	}
	s.stacks = isTruthy(lc.Stacks)
	return s
}

// InitLogger configures the global structured logger. Only the first call has
// an effect.
func InitLogger(cfg *coreconfig.Config) error {
	initOnce.Do(func() {
		s := settingsFrom(cfg)
		levelVar.Set(s.level)
		debugSampler.Configure(s.keep, s.window)
		traceOverride = isTruthy(os.Getenv("TRACE")) || isTruthy(os.Getenv("LOG_TRACE"))

		stream, errorsOnly, closers := buildOutputs(cfg)
		logClosers = closers
		logWriter = newLineWriter(stream, errorsOnly)

		base := slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   logWriter,
			format:   s.format,
			keyOrder: s.order,
			stacks:   s.stacks,
		}))
		slog.SetDefault(base)
		setBase(base)

		L.LogAttrs(context.Background(), slog.LevelInfo, "startup",
			slog.String("component", "app"),
			slog.String("go_version", runtime.Version()),
			slog.String("build_version", buildinfo.Version),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("cfg_profile", s.profile),
		)
	})
	return nil
}

// Shutdown flushes buffered output and closes log files. Later calls are no-ops.
func Shutdown() error {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if closed {
		return nil
	}
	closed = true

	var errs []error
	if logWriter != nil {
		errs = append(errs, logWriter.Flush(), logWriter.Close())
	}
	for _, c := range logClosers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// buildOutputs opens the log files under logging.dir. Files that cannot be
// opened are reported on the standard logger and skipped; stdout always works.
func buildOutputs(cfg *coreconfig.Config) (stream, errorsOnly []io.Writer, closers []io.Closer) {
	stream = []io.Writer{os.Stdout}
	if cfg == nil {
		return stream, nil, nil
	}
	dir := strings.TrimSpace(cfg.Logging.Dir)
	if dir == "" {
		return stream, nil, nil
	}
	open := func(name string) io.WriteCloser {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Printf("logger: failed to create log dir %s: %v", dir, err)
			return nil
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Printf("logger: failed to open log file %s: %v", path, err)
			return nil
		}
		return f
	}
	if f := open(cfg.Logging.BotFile); f != nil {
		stream = append(stream, f)
		closers = append(closers, f)
	}
	if f := open(cfg.Logging.ErrorsFile); f != nil {
		errorsOnly = append(errorsOnly, f)
		closers = append(closers, f)
	}
	return stream, errorsOnly, closers
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// Background returns context.Background().
func Background() context.Context {
	return context.Background()
}

// LogEvent logs event through logg, or the context logger when logg is nil.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns L scoped to the named component.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// Event logs one event for component at level.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), level, event, attrs...)
}

// Debug logs a debug-level event for the given component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info logs an info-level event for the given component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs a warn-level event for the given component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs an error-level event for the given component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// SampleDebug reports whether a high-volume debug event should be logged for
// key, typically a bot id. TRACE=1 disables sampling.
func SampleDebug(key string) bool {
	if traceOverride {
		return true
	}
	return debugSampler.Allow(key)
}
