// Package middleware holds the telebot middleware chain shared by every bot
// the runtime serves.
package middleware

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/logger"
	"github.com/m3rciful/flowbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/flowbot/core/telegram/helpers"
)

// recentUpdates keeps a short-lived set of processed (bot, update) pairs to avoid double logging.
var (
	recentMu     sync.Mutex
	recentUpdate = make(map[string]time.Time)
	keepFor      = 10 * time.Second
)

func alreadyLogged(botID string, updateID int) bool {
	now := time.Now()
	key := fmt.Sprintf("%s|%d", botID, updateID)
	recentMu.Lock()
	defer recentMu.Unlock()
	// GC old entries
	for id, ts := range recentUpdate {
		if now.Sub(ts) > keepFor {
			delete(recentUpdate, id)
		}
	}
	if _, ok := recentUpdate[key]; ok {
		return true
	}
	recentUpdate[key] = now
	return false
}

// LoggerMiddleware logs a single receipt line per update and stores a request
// context carrying rid and botID for downstream handlers. Telegram redelivers
// unanswered updates, so receipts are deduplicated by update id.
func LoggerMiddleware(botID string) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			upd := c.Update()
			user := c.Sender()
			chat := c.Chat()

			req := tghelpers.Describe(c, botID)
			rid, chatID, userID := req.RID, req.ChatID, req.UserID
			c.Set("update_start", time.Now())
			ctx := tghelpers.Bind(c, req)

			if logger.SampleDebug(botID) && !alreadyLogged(botID, upd.ID) {
				attrs := []slog.Attr{
					slog.String("status", "ok"),
					slog.String("rid", rid),
					slog.Int("update_id", upd.ID),
				}
				if chatID != 0 {
					attrs = append(attrs, slog.Int64("chat_id", chatID))
					attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
				}
				if userID != 0 {
					attrs = append(attrs, slog.Int64("user_id", userID))
					if user.Username != "" {
						attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
					}
					if user.LanguageCode != "" {
						attrs = append(attrs, slog.String("lang", user.LanguageCode))
					}
				}

				switch {
				case upd.Callback != nil:
					if token := callbacks.Token(upd.Callback); token != "" {
						attrs = append(attrs, slog.String("cb_token", logger.SanitizeLimit(token, 128)))
					}
				case upd.Message != nil:
					if t := c.Text(); t != "" {
						attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
					}
				}
				logger.LogEvent(ctx, logger.Component("tg"), slog.LevelDebug, "update.received", attrs...)
			}

			return next(c)
		}
	}
}
