package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

// ctxField is a context key whose name doubles as the log field it fills.
type ctxField string

const (
	ctxRID      ctxField = "rid"
	ctxBotID    ctxField = "bot_id"
	ctxSession  ctxField = "session_id"
	ctxUpdateID ctxField = "update_id"
	ctxUserID   ctxField = "user_id"
	ctxChatID   ctxField = "chat_id"
	ctxHandler  ctxField = "handler"
)

type loggerKey struct{}

// contextFields lists, in order, the values copied from a context into every
// record that does not set them explicitly.
var contextFields = []ctxField{ctxRID, ctxBotID, ctxSession, ctxUpdateID, ctxUserID, ctxChatID, ctxHandler}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func withString(ctx context.Context, key ctxField, v string) context.Context {
	ctx = orBackground(ctx)
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func stringFrom(ctx context.Context, key ctxField) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}

func int64From(ctx context.Context, key ctxField) int64 {
	if ctx == nil {
		return 0
	}
	switch id := ctx.Value(key).(type) {
	case int64:
		return id
	case int:
		return int64(id)
	}
	return 0
}

// WithLogger stores log in ctx for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	ctx = orBackground(ctx)
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, log)
}

// FromContext returns the logger stored by WithLogger, or L.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return L
}

// WithRID attaches the request correlation id.
func WithRID(ctx context.Context, rid string) context.Context { return withString(ctx, ctxRID, rid) }

// RIDFrom returns the correlation id, if any.
func RIDFrom(ctx context.Context) string { return stringFrom(ctx, ctxRID) }

// WithBot attaches the bot identifier so every downstream log line carries it.
func WithBot(ctx context.Context, botID string) context.Context {
	return withString(ctx, ctxBotID, botID)
}

// BotIDFrom returns the bot identifier, if any.
func BotIDFrom(ctx context.Context) string { return stringFrom(ctx, ctxBotID) }

// WithSession attaches the session identifier.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return withString(ctx, ctxSession, sessionID)
}

// SessionIDFrom returns the session identifier, if any.
func SessionIDFrom(ctx context.Context) string { return stringFrom(ctx, ctxSession) }

// WithHandler records which Telegram handler is serving the update.
func WithHandler(ctx context.Context, handler string) context.Context {
	return withString(ctx, ctxHandler, handler)
}

// HandlerFrom returns the handler name, if any.
func HandlerFrom(ctx context.Context) string { return stringFrom(ctx, ctxHandler) }

// WithUpdateMeta attaches the Telegram update, user and chat ids.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	ctx = orBackground(ctx)
	ctx = context.WithValue(ctx, ctxUpdateID, updateID)
	ctx = context.WithValue(ctx, ctxUserID, userID)
	return context.WithValue(ctx, ctxChatID, chatID)
}

// UpdateIDFrom returns the Telegram update id, or 0.
func UpdateIDFrom(ctx context.Context) int { return int(int64From(ctx, ctxUpdateID)) }

// UserIDFrom returns the Telegram user id, or 0.
func UserIDFrom(ctx context.Context) int64 { return int64From(ctx, ctxUserID) }

// ChatIDFrom returns the Telegram chat id, or 0.
func ChatIDFrom(ctx context.Context) int64 { return int64From(ctx, ctxChatID) }

// addContextFields copies context values into fields without overriding
// attributes the caller set.
func addContextFields(ctx context.Context, fields map[string]any) {
	if ctx == nil {
		return
	}
	for _, key := range contextFields {
		name := string(key)
		if _, set := fields[name]; set {
			continue
		}
		switch key {
		case ctxUpdateID, ctxUserID, ctxChatID:
			if v := int64From(ctx, key); v != 0 {
				fields[name] = v
			}
		default:
			if v := stringFrom(ctx, key); v != "" {
				fields[name] = v
			}
		}
	}
}

// Sanitize drops control and format runes except tab and newline.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, s)
}

// SanitizeLimit sanitizes s and cuts it to max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(Sanitize(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max])
}

// BuildRID returns a correlation id of the form updateID:chatID:userID.
func BuildRID(updateID int, chatID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", updateID, chatID, userID)
}

// CompactRID rewrites a BuildRID value as dot-separated base36 segments.
// Other input is returned unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}
