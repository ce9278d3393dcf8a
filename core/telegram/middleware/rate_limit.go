package middleware

import (
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/logger"
	tghelpers "github.com/m3rciful/flowbot/core/telegram/helpers"
)

// Entries idle for this many intervals are forgotten.
const forgetAfterIntervals = 100

// RateLimitOptions configures the rate limit middleware.
type RateLimitOptions struct {
	Interval time.Duration
	// Exclude lists update kinds ("callback", "message") that are never limited.
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

// userLimiter remembers when each user was last let through.
type userLimiter struct {
	interval time.Duration
	mu       sync.Mutex
	last     map[int64]time.Time
}

// admit reports whether userID may proceed at now and records the pass.
func (l *userLimiter) admit(userID int64, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.last[userID]; ok && now.Sub(prev) < l.interval {
		return false
	}
	l.last[userID] = now
	for id, seen := range l.last {
		if now.Sub(seen) > l.interval*forgetAfterIntervals {
			delete(l.last, id)
		}
	}
	return true
}

func updateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	}
	return "other"
}

// RateLimitMiddleware drops updates arriving from the same user within
// opts.Interval of the previous accepted one. Each call returns an independent
// limiter, so limits never leak across bots.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	lim := &userLimiter{interval: opts.Interval, last: make(map[int64]time.Time)}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			kind := updateKind(c.Update())
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}
			if lim.admit(user.ID, time.Now()) {
				return next(c)
			}
			logger.TG.LogAttrs(tghelpers.BuildContext(c), slog.LevelWarn, "tg.rate_limit",
				slog.String("status", "rate_limited"),
				slog.String("kind", kind),
				slog.Int64("user_id", user.ID),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
