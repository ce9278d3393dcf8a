package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

var errNoWriter = errors.New("logger: writer not initialized")

type handlerConfig struct {
	level    slog.Leveler
	writer   *lineWriter
	format   logFormat
	keyOrder []string
	stacks   bool
}

// field is a flattened attribute: group names are folded into key with dots.
type field struct {
	key string
	val any
}

// structuredHandler renders every record as one flat line in the configured
// format. Attributes bound with WithAttrs are flattened once, up front.
type structuredHandler struct {
	cfg    handlerConfig
	bound  []field
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errNoWriter
	}
	ts := r.Time.UTC()
	fields := make(map[string]any, 16+len(h.bound))
	fields["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	fields["level"] = normalizeLevel(r.Level.String())
	if h.cfg.format == formatJSON {
		fields["ts_unix_nano"] = ts.UnixNano()
	}
	for _, f := range h.bound {
		fields[f.key] = f.val
	}
	r.Attrs(func(a slog.Attr) bool {
		flatten(h.prefix, a, func(f field) { fields[f.key] = f.val })
		return true
	})
	addContextFields(ctx, fields)
	h.finish(fields, r)

	line, err := encodeLine(h.cfg.format, fields, h.cfg.keyOrder)
	if err != nil {
		return err
	}
	return h.cfg.writer.WriteLevel(r.Level, append(line, '\n'))
}

// finish fills defaults and normalises well-known fields before encoding.
func (h *structuredHandler) finish(fields map[string]any, r slog.Record) {
	if rid, ok := stringField(fields, "rid"); ok && rid != "" {
		if compact := CompactRID(rid); compact != rid {
			if _, seen := fields["rid_full"]; !seen && h.cfg.format == formatJSON {
				fields["rid_full"] = rid
			}
			fields["rid"] = compact
		}
	}
	if ev, _ := stringField(fields, "event"); ev == "" {
		ev = r.Message
		if ev == "" {
			ev = "unknown"
		}
		fields["event"] = ev
	}
	if comp, _ := stringField(fields, "component"); comp == "" {
		fields["component"] = "app"
	}
	if h.cfg.stacks && r.Level >= slog.LevelError && r.PC != 0 {
		if _, seen := fields["stack"]; !seen {
			fields["stack"] = callerStack(r.PC)
		}
	}
	normalizeEnums(fields)
	for k, v := range fields {
		if v == nil || v == "" {
			delete(fields, k)
		}
	}
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.bound = append([]field(nil), h.bound...)
	for _, a := range attrs {
		flatten(h.prefix, a, func(f field) { clone.bound = append(clone.bound, f) })
	}
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

// flatten walks groups depth-first and emits each leaf with a dotted key.
func flatten(prefix string, a slog.Attr, emit func(field)) {
	a.Value = a.Value.Resolve()
	key := joinKey(prefix, a.Key)
	if a.Value.Kind() == slog.KindGroup {
		for _, child := range a.Value.Group() {
			flatten(key, child, emit)
		}
		return
	}
	if key == "" {
		return
	}
	if f, ok := normalizeValue(key, a.Value); ok {
		emit(f)
	}
}

// durationKey appends "_ms" unless the key already carries the unit.
func durationKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

func normalizeValue(key string, v slog.Value) (field, bool) {
	switch v.Kind() {
	case slog.KindString:
		return field{key, strings.TrimSpace(v.String())}, true
	case slog.KindBool:
		return field{key, v.Bool()}, true
	case slog.KindInt64:
		return field{key, v.Int64()}, true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return field{key, int64(u)}, true
		}
		return field{key, v.Uint64()}, true
	case slog.KindFloat64:
		return field{key, v.Float64()}, true
	case slog.KindDuration:
		return field{durationKey(key), RoundMS(v.Duration()).Milliseconds()}, true
	case slog.KindTime:
		return field{key, v.Time().UTC().Format(time.RFC3339Nano)}, true
	}
	switch x := v.Any().(type) {
	case nil:
		return field{}, false
	case error:
		return field{key, x.Error()}, true
	case time.Duration:
		return field{durationKey(key), RoundMS(x).Milliseconds()}, true
	case fmt.Stringer:
		return field{key, x.String()}, true
	default:
		return field{key, fmt.Sprint(x)}, true
	}
}

func stringField(fields map[string]any, key string) (string, bool) {
	v, ok := fields[key]
	if !ok {
		return "", false
	}
	if s, isStr := v.(string); isStr {
		return s, true
	}
	return fmt.Sprint(v), true
}

const maxStackFrames = 24

// callerStack renders the frames above pc as "func file:line" separated by " < ".
func callerStack(pc uintptr) string {
	pcs := make([]uintptr, maxStackFrames)
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return ""
	}
	// Frames below the record's call site belong to slog and this handler.
	n := runtime.Callers(1, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var parts []string
	started := false
	for {
		fr, more := frames.Next()
		if fr.Function == fn.Name() {
			started = true
		}
		if started {
			parts = append(parts, fmt.Sprintf("%s %s:%d", shortFunc(fr.Function), shortFile(fr.File), fr.Line))
		}
		if !more {
			break
		}
	}
	if len(parts) == 0 {
		file, ln := fn.FileLine(pc)
		return fmt.Sprintf("%s %s:%d", shortFunc(fn.Name()), shortFile(file), ln)
	}
	return strings.Join(parts, " < ")
}

func shortFunc(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

func shortFile(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return path
	}
	if prev := strings.LastIndex(path[:idx], "/"); prev >= 0 {
		return path[prev+1:]
	}
	return path
}
