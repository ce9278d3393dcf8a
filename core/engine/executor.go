package engine

import (
	"context"
	"log/slog"

	"github.com/m3rciful/flowbot/core/event"
	"github.com/m3rciful/flowbot/core/graph"
	"github.com/m3rciful/flowbot/core/logger"
	"github.com/m3rciful/flowbot/core/session"
)

// execute sends b, records its step and moves the session pointer to b.
// Transport failures leave the step without a response and do not stop the turn.
func (e *Engine) execute(ctx context.Context, t *turn, b *graph.Block, trigger event.Input) (*session.Step, error) {
	ctx = logger.WithHandler(ctx, "block:"+b.ID)
	action, ok := e.outbound(b)

	step, err := e.record(ctx, t, b, trigger)
	if err != nil {
		return nil, err
	}

	if !ok {
		logger.Warn(ctx, "engine", "engine.action.unsupported",
			slog.String("status", "skip"),
			slog.String("block_id", b.ID),
			slog.String("action", string(b.Kind())),
			slog.String("err_code", "CONFIGURATION_ERROR"),
		)
	} else if err := e.deliver(ctx, t, b, step, action); err != nil {
		return nil, err
	}

	if err := e.sessions.SetCurrentBlock(ctx, t.sess, b.ID); err != nil {
		return nil, err
	}
	return step, nil
}

// record appends a step for b without contacting the transport.
func (e *Engine) record(ctx context.Context, t *turn, b *graph.Block, trigger event.Input) (*session.Step, error) {
	step := &session.Step{
		SessionID:  t.sess.ID,
		BlockID:    b.ID,
		BlockLabel: b.Label,
		ActionKind: string(b.Kind()),
		InputType:  session.InputNone,
	}
	if trigger != nil {
		step.InputType = trigger.Type()
		step.UserInput = trigger.Raw()
	}
	if err := e.sessions.AppendStep(ctx, step); err != nil {
		return nil, err
	}
	return step, nil
}

func (e *Engine) deliver(ctx context.Context, t *turn, b *graph.Block, step *session.Step, action OutboundAction) error {
	sendCtx, cancel := context.WithTimeout(ctx, e.timeout)
	resp, err := e.transport.Send(sendCtx, Destination{BotID: t.botID, UserID: t.sess.UserID}, action)
	cancel()
	if err != nil {
		te := AsTransportError(err)
		logger.Error(ctx, "engine", "engine.transport",
			slog.String("status", "fail"),
			slog.String("block_id", b.ID),
			slog.String("action", action.ActionName()),
			slog.Int("step", step.Order),
			slog.String("err", te.Error()),
			slog.String("err_code", te.Code()),
			slog.String("cause", te.Kind),
		)
		return nil
	}

	if err := e.sessions.SetStepResponse(ctx, step, resp.Summary, resp.Raw); err != nil {
		return err
	}
	logger.Debug(ctx, "engine", "engine.transport",
		slog.String("status", "ok"),
		slog.String("block_id", b.ID),
		slog.String("action", action.ActionName()),
		slog.Int("step", step.Order),
	)

	if b.Kind() == graph.KindHandoff {
		return e.sessions.MarkHandoff(ctx, t.sess)
	}
	return nil
}

// outbound maps a block to the transport action; false for kinds without one.
func (e *Engine) outbound(b *graph.Block) (OutboundAction, bool) {
	switch a := b.Action.(type) {
	case graph.SendText:
		return Text{Body: a.Body, Format: a.Format}, true
	case graph.AskQuestion:
		return Text{Body: a.Body, Format: a.Format}, true
	case graph.SendMenu:
		rows := make([][]MenuButton, 0, len(a.Rows))
		for _, row := range a.Rows {
			out := make([]MenuButton, 0, len(row))
			for _, btn := range row {
				out = append(out, MenuButton{Label: btn.Label, Token: btn.Token, URL: btn.URL})
			}
			rows = append(rows, out)
		}
		return Menu{Body: a.Body, Format: a.Format, Rows: rows}, true
	case graph.SendFile:
		return File{Ref: a.File, Caption: a.Caption}, true
	case graph.Handoff:
		body := a.Body
		if body == "" {
			body = e.handoffNotice
		}
		return HandoffNotice{Body: body}, true
	}
	return nil, false
}
