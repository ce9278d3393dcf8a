// Package engine runs a bot's block graph against inbound events: it classifies the
// event, positions the user's session, resolves the target block, executes it through
// the transport and records steps and answers.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/m3rciful/flowbot/core/botdef"
	"github.com/m3rciful/flowbot/core/event"
	"github.com/m3rciful/flowbot/core/graph"
	"github.com/m3rciful/flowbot/core/lock"
	"github.com/m3rciful/flowbot/core/logger"
	"github.com/m3rciful/flowbot/core/session"
)

const (
	// DefaultTransportTimeout bounds one outbound call.
	DefaultTransportTimeout = 30 * time.Second
	// DefaultHandoffNotice is sent by handoff blocks that carry no text.
	DefaultHandoffNotice = "An operator will join the conversation shortly."
)

// Options wires the engine's collaborators. Definitions, Sessions and Transport are required.
type Options struct {
	Definitions botdef.Loader
	Sessions    *session.Store
	Transport   Transport
	// Locker serializes events of one (bot, user) pair; defaults to an in-process lock.
	Locker           lock.Locker
	TransportTimeout time.Duration
	HandoffNotice    string
}

// Engine processes inbound events. It holds no per-session state of its own and is
// safe for concurrent use.
type Engine struct {
	defs          botdef.Loader
	sessions      *session.Store
	transport     Transport
	locker        lock.Locker
	timeout       time.Duration
	handoffNotice string
}

// New validates opts and returns an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Definitions == nil {
		return nil, errors.New("engine: definitions loader is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("engine: session store is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("engine: transport is required")
	}
	if opts.Locker == nil {
		opts.Locker = lock.NewLocal()
	}
	if opts.TransportTimeout <= 0 {
		opts.TransportTimeout = DefaultTransportTimeout
	}
	if opts.HandoffNotice == "" {
		opts.HandoffNotice = DefaultHandoffNotice
	}
	return &Engine{
		defs:          opts.Definitions,
		sessions:      opts.Sessions,
		transport:     opts.Transport,
		locker:        opts.Locker,
		timeout:       opts.TransportTimeout,
		handoffNotice: opts.HandoffNotice,
	}, nil
}

// turn carries everything one event needs; nothing outlives it.
type turn struct {
	botID string
	graph *graph.Graph
	sess  *session.Session
	in    event.Input
}

// OnEvent processes one inbound payload for botID.
//
// It returns ErrBotNotFound or ErrBotInactive for unknown or disabled bots, and a
// *session.PersistenceError when storage fails. Every other problem (bad graph,
// unresolvable button, transport failure) is logged and nil is returned so the
// caller acknowledges the update.
func (e *Engine) OnEvent(ctx context.Context, botID string, p event.Payload) error {
	ctx = logger.WithBot(ctx, botID)
	start := time.Now()

	def, err := e.defs.Load(ctx, botID)
	if err != nil {
		if errors.Is(err, botdef.ErrNotFound) {
			logger.Warn(ctx, "engine", "engine.bot.not_found", slog.String("status", "skip"))
			return ErrBotNotFound
		}
		var cfgErr *graph.ConfigError
		if errors.As(err, &cfgErr) {
			logConfigError(ctx, cfgErr)
			return nil
		}
		logger.Error(ctx, "engine", "engine.definition.load",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return &session.PersistenceError{Op: "load_definition", Err: err}
	}
	if !def.Active {
		logger.Info(ctx, "engine", "engine.bot.inactive", slog.String("status", "skip"))
		return ErrBotInactive
	}

	in := event.Classify(p)
	if _, ok := in.(event.Unknown); ok {
		logger.Debug(ctx, "engine", "engine.input.unknown",
			slog.String("status", "skip"),
			slog.Int("update_id", p.UpdateID),
		)
		return nil
	}

	g, err := graph.Parse(def.Blocks)
	if err != nil {
		var cfgErr *graph.ConfigError
		if errors.As(err, &cfgErr) {
			logConfigError(ctx, cfgErr)
			return nil
		}
		return err
	}
	if g.Len() == 0 {
		logger.Warn(ctx, "engine", "engine.graph.empty", slog.String("status", "skip"))
		return nil
	}

	key := session.Key{BotID: botID, UserID: p.UserID}
	unlock, err := e.locker.Lock(ctx, key.String())
	if err != nil {
		logger.Error(ctx, "engine", "engine.lock",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return &session.PersistenceError{Op: "lock_session", Err: err}
	}
	defer unlock()

	t := &turn{botID: botID, graph: g, in: in}

	handoff, err := e.sessions.HandoffActive(ctx, botID, p.UserID)
	if err != nil {
		return e.fail(ctx, err)
	}
	if handoff != nil {
		t.sess = handoff
		return e.transcribe(logger.WithSession(ctx, handoff.ID), t)
	}

	sess, err := e.sessions.GetOrCreateActive(ctx, botID, p.UserID, p.Profile)
	if err != nil {
		return e.fail(ctx, err)
	}
	t.sess = sess
	ctx = logger.WithSession(ctx, sess.ID)

	if err := e.run(ctx, t); err != nil {
		return e.fail(ctx, err)
	}
	logger.Debug(ctx, "engine", "engine.event.done",
		slog.String("status", "ok"),
		slog.String("input", string(in.Type())),
		slog.String("block_id", sess.CurrentBlockID),
		slog.Int64("duration_ms", logger.Took(start).Milliseconds()),
	)
	return nil
}

func (e *Engine) fail(ctx context.Context, err error) error {
	logger.Error(ctx, "engine", "engine.event.abort",
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
		slog.String("err_code", ErrorCode(err)),
	)
	return err
}

// run resolves and executes the turn.
func (e *Engine) run(ctx context.Context, t *turn) error {
	if press, ok := t.in.(event.ButtonPress); ok {
		res, err := ResolveButton(t.graph, press.Token)
		if err != nil {
			logger.Warn(ctx, "engine", "engine.resolve",
				slog.String("status", "fail"),
				slog.String("token", press.Token),
				slog.String("err_code", ErrorCode(err)),
			)
			return nil
		}
		logger.Debug(ctx, "engine", "engine.resolve",
			slog.String("status", "ok"),
			slog.String("token", press.Token),
			slog.String("tier", res.Tier.String()),
			slog.String("block_id", res.Block.ID),
		)
		if _, err := e.execute(ctx, t, res.Block, t.in); err != nil {
			return err
		}
		if awaitsInput(res.Block) {
			return nil
		}
		return e.hop(ctx, t, res.Block)
	}

	active := ActiveBlock(t.graph, t.sess, t.in)
	if active == nil {
		logger.Warn(ctx, "engine", "engine.active.none", slog.String("status", "skip"))
		return nil
	}

	if !e.shown(t) {
		step, err := e.execute(ctx, t, active, t.in)
		if err != nil {
			return err
		}
		if err := e.collect(ctx, t, active, step, false); err != nil {
			return err
		}
		if awaitsInput(active) {
			return nil
		}
		return e.hop(ctx, t, active)
	}

	step, err := e.record(ctx, t, active, t.in)
	if err != nil {
		return err
	}
	if err := e.collect(ctx, t, active, step, true); err != nil {
		return err
	}
	if active.IsMenu() {
		// menus move on through their buttons only
		return nil
	}
	return e.hop(ctx, t, active)
}

// awaitsInput reports whether a freshly shown block waits for the user before advancing.
func awaitsInput(b *graph.Block) bool {
	switch b.Kind() {
	case graph.KindAskQuestion, graph.KindSendMenu:
		return true
	}
	return false
}

// shown reports whether the session already sits on a block of the current graph.
func (e *Engine) shown(t *turn) bool {
	if t.sess.CurrentBlockID == "" {
		return false
	}
	_, ok := t.graph.ByID(t.sess.CurrentBlockID)
	return ok
}

// hop executes from's successor once. Chains are never followed further.
func (e *Engine) hop(ctx context.Context, t *turn, from *graph.Block) error {
	if t.sess.Status != session.StatusActive {
		return nil
	}
	next := nextOf(t.graph, from)
	if next == nil {
		return nil
	}
	logger.Debug(ctx, "engine", "engine.advance",
		slog.String("status", "ok"),
		slog.String("block_id", next.ID),
		slog.String("from", from.ID),
	)
	_, err := e.execute(ctx, t, next, nil)
	return err
}

// transcribe records input received while an operator owns the session, without replying.
func (e *Engine) transcribe(ctx context.Context, t *turn) error {
	logger.Info(ctx, "engine", "engine.handoff.suppressed",
		slog.String("status", "skip"),
		slog.String("input", string(t.in.Type())),
	)
	if err := e.sessions.Touch(ctx, t.sess); err != nil {
		return e.fail(ctx, err)
	}
	block, ok := t.graph.ByID(t.sess.CurrentBlockID)
	if !ok {
		return nil
	}
	step, err := e.record(ctx, t, block, t.in)
	if err != nil {
		return e.fail(ctx, err)
	}
	if err := e.collect(ctx, t, block, step, false); err != nil {
		return e.fail(ctx, err)
	}
	return nil
}

func logConfigError(ctx context.Context, err *graph.ConfigError) {
	attrs := []slog.Attr{
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
		slog.String("err_code", err.Code()),
	}
	if err.BlockID != "" {
		attrs = append(attrs, slog.String("block_id", err.BlockID))
	}
	logger.Error(ctx, "engine", "engine.graph.invalid", attrs...)
}
