// Package app assembles the flow engine, its stores and the Telegram runtime
// from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/botdef"
	coreconfig "github.com/m3rciful/flowbot/core/config"
	"github.com/m3rciful/flowbot/core/engine"
	"github.com/m3rciful/flowbot/core/graph"
	"github.com/m3rciful/flowbot/core/lock"
	"github.com/m3rciful/flowbot/core/logger"
	"github.com/m3rciful/flowbot/core/session"
	"github.com/m3rciful/flowbot/core/storage"
	"github.com/m3rciful/flowbot/core/telegram"
	"github.com/m3rciful/flowbot/core/telegram/router"
	"github.com/m3rciful/flowbot/core/valkey"
	"github.com/m3rciful/flowbot/core/worker"
)

const (
	ingressRetries = 2
	ingressBackoff = 200 * time.Millisecond
)

// Options supplies infrastructure created by bootstrap.
type Options struct {
	// DB backs sessions and, with bots.source=db, definitions. It may be nil
	// when Memory is set and definitions come from files.
	DB *sqlx.DB
	// Valkey, when set, replaces the in-process session lock.
	Valkey *valkey.Client
	// Memory keeps sessions in process memory.
	Memory bool
	// Transport overrides the Telegram transport.
	Transport engine.Transport
}

// App owns the long-lived components of one process.
type App struct {
	cfg      *Config
	db       *sqlx.DB
	kv       *valkey.Client
	defs     botdef.Source
	sessions *session.Store
	registry *telegram.Registry
	engine   *engine.Engine
	pool     *worker.Pool
}

// New wires stores, lock, engine and ingress queue.
func New(cfg *Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	a := &App{cfg: cfg, db: opts.DB, kv: opts.Valkey, registry: telegram.NewRegistry()}

	defs, err := a.definitions()
	if err != nil {
		return nil, err
	}
	a.defs = defs

	var repo session.Repository
	switch {
	case opts.Memory:
		repo = session.NewMemoryRepository()
	case opts.DB != nil:
		repo = storage.NewSessions(opts.DB)
	default:
		return nil, errors.New("app: database required unless sessions are kept in memory")
	}
	a.sessions = session.NewStore(repo)

	var locker lock.Locker = lock.NewLocal()
	if opts.Valkey != nil {
		locker = lock.NewValkey(opts.Valkey, lock.ValkeyOptions{})
	}

	transport := opts.Transport
	if transport == nil {
		transport = telegram.NewTransport(a.registry)
	}
	a.engine, err = engine.New(engine.Options{
		Definitions:      a.defs,
		Sessions:         a.sessions,
		Transport:        transport,
		Locker:           locker,
		TransportTimeout: time.Duration(cfg.Engine.TransportTimeoutSeconds) * time.Second,
		HandoffNotice:    cfg.Engine.HandoffNotice,
	})
	if err != nil {
		return nil, err
	}

	a.pool = worker.New(worker.Options{
		Shards:    cfg.Engine.Workers,
		QueueSize: cfg.Engine.QueueSize,
		Retry: func(err error) bool {
			return errors.Is(err, lock.ErrNotAcquired)
		},
		MaxRetries:   ingressRetries,
		RetryBackoff: ingressBackoff,
	})
	return a, nil
}

func (a *App) definitions() (botdef.Source, error) {
	switch a.cfg.Bots.Source {
	case coreconfig.BotsSourceFiles:
		fs, err := botdef.NewFileStore(a.cfg.Bots.Dir)
		if err != nil {
			return nil, fmt.Errorf("app: bot definitions: %w", err)
		}
		return fs, nil
	default:
		if a.db == nil {
			return nil, errors.New("app: bots.source=db needs a database")
		}
		return storage.NewBots(a.db), nil
	}
}

// Engine returns the flow engine.
func (a *App) Engine() *engine.Engine { return a.engine }

// Sessions returns the session store.
func (a *App) Sessions() *session.Store { return a.sessions }

// Definitions returns the configured bot definition source.
func (a *App) Definitions() botdef.Source { return a.defs }

// AbandonStale closes active and handoff sessions idle for longer than
// olderThan; zero uses engine.stale_after_minutes.
func (a *App) AbandonStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = time.Duration(a.cfg.Engine.StaleAfterMinutes) * time.Minute
	}
	return a.sessions.AbandonStale(ctx, olderThan)
}

// CloseSession ends one session, typically after an operator finished a handoff.
func (a *App) CloseSession(ctx context.Context, id string, abandon bool) (*session.Session, error) {
	return a.sessions.Close(ctx, id, abandon)
}

// TelegramRunOptions lists the active bots and binds each to the engine.
func (a *App) TelegramRunOptions(ctx context.Context) (telegram.RunOptions, error) {
	defs, err := a.defs.ListActive(ctx)
	if err != nil {
		return telegram.RunOptions{}, fmt.Errorf("app: list bots: %w", err)
	}

	specs := make([]telegram.BotSpec, 0, len(defs))
	for _, def := range defs {
		if def.Token == "" {
			logger.Warn(ctx, "app", "bot.skip",
				slog.String("bot_id", def.ID),
				slog.String("reason", "no_token"),
			)
			continue
		}
		specs = append(specs, telegram.BotSpec{
			ID:       def.ID,
			Token:    def.Token,
			Commands: commandsFor(ctx, def),
		})
	}
	if len(specs) == 0 {
		return telegram.RunOptions{}, errors.New("app: no active bot with a token")
	}

	core := &a.cfg.Config
	return telegram.RunOptions{
		Config:   core,
		Registry: a.registry,
		Bots:     specs,
		Middlewares: func(botID string) []telegram.Middleware {
			return telegram.DefaultMiddlewares(core, botID, nil)
		},
		Routes: func(botID string) []telegram.Route {
			return router.IngressRoutes(router.IngressOptions{
				BotID:   botID,
				Handler: a.engine.OnEvent,
				Pool:    a.pool,
			})
		},
		OnStop: func(context.Context, telegram.Runtime) error {
			a.pool.Close()
			return nil
		},
	}, nil
}

func commandsFor(ctx context.Context, def botdef.Definition) []tele.Command {
	g, err := graph.Parse(def.Blocks)
	if err != nil {
		logger.Warn(ctx, "app", "bot.commands",
			slog.String("status", "fail"),
			slog.String("bot_id", def.ID),
			slog.String("err", err.Error()),
		)
		return nil
	}
	return telegram.CommandsFromGraph(g)
}

// Close drains the ingress queue and releases infrastructure.
func (a *App) Close() error {
	a.pool.Close()
	if a.kv != nil {
		a.kv.Close()
	}
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
