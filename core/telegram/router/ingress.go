// Package router turns Telegram updates into engine events.
package router

import (
	"context"
	"errors"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/event"
	tg "github.com/m3rciful/flowbot/core/telegram"
	tghelpers "github.com/m3rciful/flowbot/core/telegram/helpers"
	"github.com/m3rciful/flowbot/core/worker"
)

// EventHandler processes one payload for a bot; engine.Engine.OnEvent fits.
type EventHandler func(ctx context.Context, botID string, p event.Payload) error

// IngressOptions configures IngressRoutes.
type IngressOptions struct {
	BotID   string
	Handler EventHandler
	// Pool runs events off the update goroutine, one key per (bot, user). When
	// nil events are handled inline.
	Pool *worker.Pool
	// Busy is called when the pool rejects an event.
	Busy tele.HandlerFunc
}

// IngressRoutes binds every update kind the engine understands to one handler.
func IngressRoutes(opts IngressOptions) []tg.Route {
	h := ingressHandler(opts)
	endpoints := []string{
		tele.OnText,
		tele.OnCallback,
		tele.OnDocument,
		tele.OnPhoto,
		tele.OnContact,
		tele.OnLocation,
	}
	routes := make([]tg.Route, 0, len(endpoints))
	for _, ep := range endpoints {
		routes = append(routes, tg.Route{Endpoint: ep, Handler: h})
	}
	return routes
}

func ingressHandler(opts IngressOptions) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		if opts.Handler == nil {
			return nil
		}
		if c.Callback() != nil {
			_ = c.Respond()
		}

		p := PayloadFromUpdate(opts.BotID, c.Update())
		if p.UserID == "" {
			logHandlerSummary(c, "ingress", start, "skip", "no_sender", nil)
			return nil
		}
		ctx := tghelpers.WithHandler(c, "ingress")
		extras := []slog.Attr{slog.String("user", p.UserID)}

		if opts.Pool == nil {
			err := opts.Handler(ctx, opts.BotID, p)
			logHandlerSummary(c, "ingress", start, "", "", err, extras...)
			return nil
		}

		key := opts.BotID + "|" + p.UserID
		err := opts.Pool.Enqueue(ctx, key, "ingress", func(jobCtx context.Context) error {
			return opts.Handler(jobCtx, opts.BotID, p)
		})
		switch {
		case err == nil:
			logHandlerSummary(c, "ingress", start, "ok", "queued", nil, extras...)
		case errors.Is(err, worker.ErrQueueFull):
			logHandlerSummary(c, "ingress", start, "skip", "busy", err, extras...)
			if opts.Busy != nil {
				_ = opts.Busy(c)
			}
		default:
			logHandlerSummary(c, "ingress", start, "fail", "", err, extras...)
		}
		return nil
	}
}
