package logger

import "strings"

const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
	LevelFatal = "FATAL"
)

var levelNames = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
	"fatal":   LevelFatal,
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if mapped, ok := levelNames[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

// enum describes a closed vocabulary. Unknown values are kept lowercased when
// keepUnknown is set and dropped otherwise.
type enum struct {
	values      map[string]bool
	keepUnknown bool
}

func newEnum(keepUnknown bool, values ...string) enum {
	e := enum{values: make(map[string]bool, len(values)), keepUnknown: keepUnknown}
	for _, v := range values {
		e.values[v] = true
	}
	return e
}

var enums = map[string]enum{
	"status": newEnum(true, "ok", "fail", "skip", "retry", "rate_limited", "cancelled"),
	// Ingress reports how an update left the Telegram handler.
	"outcome": newEnum(false, "ok", "fail", "cancelled", "rate_limited", "skip", "queued", "busy", "no_sender"),
	"tier":    newEnum(false, "direct_id", "button_target", "owner_next", "owner_self"),
}

func normalizeEnums(fields map[string]any) {
	for key, e := range enums {
		raw, ok := fields[key].(string)
		if !ok || raw == "" {
			continue
		}
		v := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case e.values[v], e.keepUnknown:
			fields[key] = v
		default:
			delete(fields, key)
		}
	}
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"bot_id",
	"session_id",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"op",
	"outcome",
	"duration_ms",
	"block_id",
	"action",
	"input",
	"token",
	"tier",
	"step",
	"key",
	"queue",
	"shard",
	"mode",
	"listen",
	"public_url",
	"http_code",
	"db",
	"host",
	"port",
	"lang",
	"username",
	"payload",
	"count",
	"bots",
	"blocks",
	"warnings",
	"err",
	"err_code",
	"cause",
	"retryable",
	"attempts",
	"backoff_ms",
	"repeats",
	"stack",
}
