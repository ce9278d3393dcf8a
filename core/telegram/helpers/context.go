// Package helpers carries request-scoped logging context through telebot handlers.
package helpers

import (
	"context"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/logger"
)

const (
	ctxKey   = "flow_ctx"
	botIDKey = "bot_id"
	ridKey   = "rid"
)

// Request is the identity of one update as seen by every handler in the chain.
type Request struct {
	BotID    string
	RID      string
	UpdateID int
	ChatID   int64
	UserID   int64
}

// Describe reads the update identifiers from c. botID may be empty when the
// caller does not know it; a previously stored bot id is then used.
func Describe(c tele.Context, botID string) Request {
	upd := c.Update()
	req := Request{BotID: botID, UpdateID: upd.ID}
	if chat := c.Chat(); chat != nil {
		req.ChatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		req.UserID = user.ID
	}
	if req.BotID == "" {
		req.BotID, _ = c.Get(botIDKey).(string)
	}
	req.RID, _ = c.Get(ridKey).(string)
	if req.RID == "" {
		req.RID = logger.BuildRID(req.UpdateID, req.ChatID, req.UserID)
	}
	return req
}

// Bind builds the logging context for req and stores it on c together with
// the rid and bot id, so later middleware and handlers share it.
func Bind(c tele.Context, req Request) context.Context {
	ctx := logger.WithRID(logger.Background(), req.RID)
	ctx = logger.WithUpdateMeta(ctx, req.UpdateID, req.UserID, req.ChatID)
	ctx = logger.WithBot(ctx, req.BotID)
	ctx = logger.WithLogger(ctx, logger.Component("tg"))
	c.Set(ridKey, req.RID)
	if req.BotID != "" {
		c.Set(botIDKey, req.BotID)
	}
	c.Set(ctxKey, ctx)
	return ctx
}

// BuildContext returns the context stored by Bind, creating one when no
// middleware ran first.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := c.Get(ctxKey).(context.Context); ok && ctx != nil {
		return ctx
	}
	return Bind(c, Describe(c, ""))
}

// WithHandler tags the stored context with the handler name.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	c.Set(ctxKey, ctx)
	return ctx
}
