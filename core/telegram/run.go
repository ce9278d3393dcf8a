package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/flowbot/core/config"
	"github.com/m3rciful/flowbot/core/logger"
)

const shutdownTimeout = 5 * time.Second

// Middleware describes a bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  tele.MiddlewareFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// BotSpec is one bot to run.
type BotSpec struct {
	ID       string
	Token    string
	Commands []tele.Command
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry
	Bots     []BotSpec

	// Middlewares and Routes are built per bot.
	Middlewares func(botID string) []Middleware
	Routes      func(botID string) []Route

	Client *http.Client
	// APIURL overrides the Bot API base URL.
	APIURL string
	// Offline skips the getMe call when bots are created.
	Offline bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Registry *Registry
	BotIDs   []string
	// Webhook is nil in long-polling mode.
	Webhook *WebhookServer
}

type runningBot struct {
	id  string
	bot *tele.Bot
}

// RunTelegram starts every bot in opts.Bots and serves them until ctx is done.
// Bots that fail to initialise are logged and skipped; it is an error when none start.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	cfg := opts.Config
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	client := opts.Client
	if client == nil {
		client = BuildHTTPClient(HTTPClientOptions{})
	}
	webhookMode := cfg.Telegram.RunMode == coreconfig.RunModeWebhook

	var wh *WebhookServer
	if webhookMode {
		wh = NewWebhookServer(cfg.Webhook.Secret)
	}

	buildStart := time.Now()
	var bots []runningBot
	for _, spec := range opts.Bots {
		bot, err := buildBot(ctx, spec, opts, client, wh)
		if err != nil {
			logger.TG.LogAttrs(ctx, slog.LevelError, "bot.init",
				slog.String("status", "fail"),
				slog.String("bot_id", spec.ID),
				slog.String("err", sanitizeErrorMessage(err)),
			)
			continue
		}
		reg.Register(spec.ID, bot)
		bots = append(bots, runningBot{id: spec.ID, bot: bot})
	}
	if len(bots) == 0 {
		return errors.New("telegram: no bot could be started")
	}

	rt := Runtime{Registry: reg, BotIDs: reg.IDs(), Webhook: wh}
	mode := coreconfig.RunModeLongpoll
	if webhookMode {
		mode = coreconfig.RunModeWebhook
	}
	logger.TG.LogAttrs(ctx, slog.LevelInfo, "mode",
		slog.String("mode", mode),
		slog.Int("bots", len(bots)),
		slog.Duration("duration", logger.RoundMS(time.Since(buildStart))),
	)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	for _, rb := range bots {
		wg.Add(1)
		go func(b *tele.Bot) {
			defer wg.Done()
			b.Start()
		}(rb.bot)
	}

	serveErr := make(chan error, 1)
	var srv *http.Server
	if webhookMode {
		srv = &http.Server{
			Addr:              net.JoinHostPort(cfg.Webhook.Listen, strconv.Itoa(cfg.Webhook.Port)),
			Handler:           wh.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.TG.LogAttrs(ctx, slog.LevelInfo, "webhook.listen", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.TG.LogAttrs(ctx, slog.LevelWarn, "webhook.shutdown",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
		cancel()
	}
	for _, rb := range bots {
		rb.bot.Stop()
		reg.Remove(rb.id)
	}
	wg.Wait()

	if opts.OnStop != nil {
		if err := opts.OnStop(context.WithoutCancel(ctx), rt); err != nil {
			return err
		}
	}
	return runErr
}

func buildBot(ctx context.Context, spec BotSpec, opts RunOptions, client *http.Client, wh *WebhookServer) (*tele.Bot, error) {
	if spec.ID == "" || spec.Token == "" {
		return nil, errors.New("bot id and token are required")
	}
	cfg := opts.Config
	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		QueueSize:              cfg.Engine.QueueSize,
	})

	botCtx := logger.WithBot(ctx, spec.ID)
	bot, err := tele.NewBot(tele.Settings{
		Token:   spec.Token,
		URL:     opts.APIURL,
		Poller:  poller,
		Client:  client,
		Offline: opts.Offline,
		OnError: func(err error, _ tele.Context) {
			logger.TG.LogAttrs(botCtx, slog.LevelError, "bot.error",
				slog.String("status", "fail"),
				slog.String("err", sanitizeErrorMessage(err)),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("bot initialization failed: %w", err)
	}

	if opts.Middlewares != nil {
		for _, mw := range opts.Middlewares(spec.ID) {
			if mw.Use != nil {
				bot.Use(mw.Use)
			}
		}
	}
	if opts.Routes != nil {
		for _, route := range opts.Routes(spec.ID) {
			if route.Endpoint == nil || route.Handler == nil {
				continue
			}
			bot.Handle(route.Endpoint, route.Handler)
		}
	}

	if !opts.Offline {
		if err := syncWebhook(botCtx, bot, spec.ID, cfg); err != nil {
			return nil, err
		}
		if cfg.Telegram.SyncCommands {
			InitBotCommands(botCtx, spec.ID, bot, spec.Commands)
		}
	}
	if pp, ok := poller.(*PushPoller); ok && wh != nil {
		wh.Attach(spec.ID, pp)
	}
	return bot, nil
}

// syncWebhook points Telegram at the shared listener in webhook mode and clears
// any stale webhook in long-polling mode.
func syncWebhook(ctx context.Context, bot *tele.Bot, botID string, cfg *coreconfig.Config) error {
	if cfg.Telegram.RunMode != coreconfig.RunModeWebhook {
		if err := bot.RemoveWebhook(); err != nil {
			logger.TG.LogAttrs(ctx, slog.LevelWarn, "delete_webhook",
				slog.String("status", "fail"),
				slog.String("err", sanitizeErrorMessage(err)),
			)
		}
		return nil
	}
	hook := &tele.Webhook{
		Endpoint:    &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL + "/tg/" + botID},
		SecretToken: cfg.Webhook.Secret,
	}
	if err := bot.SetWebhook(hook); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	logger.TG.LogAttrs(ctx, slog.LevelInfo, "set_webhook",
		slog.String("status", "ok"),
		slog.String("public_url", hook.Endpoint.PublicURL),
	)
	return nil
}
