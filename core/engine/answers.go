package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/m3rciful/flowbot/core/event"
	"github.com/m3rciful/flowbot/core/graph"
	"github.com/m3rciful/flowbot/core/logger"
	"github.com/m3rciful/flowbot/core/session"
)

// Well-known answer keys filled regardless of the active block's kind.
const (
	KeyPhone    = "phone"
	KeyLocation = "location"
)

// Collect upserts one answer for the session by key.
func (e *Engine) Collect(ctx context.Context, sess *session.Session, key, value, sourceBlockID string) error {
	if err := e.sessions.SaveAnswer(ctx, sess, key, value, sourceBlockID); err != nil {
		return err
	}
	logger.Debug(ctx, "engine", "engine.answer",
		slog.String("status", "ok"),
		slog.String("key", key),
		slog.String("block_id", sourceBlockID),
	)
	return nil
}

// collect extracts data from the turn's input. Text only counts as an answer when
// the user is replying to a question already shown; slash commands never do.
func (e *Engine) collect(ctx context.Context, t *turn, block *graph.Block, step *session.Step, replying bool) error {
	switch in := t.in.(type) {
	case event.Text:
		if !replying || block.Kind() != graph.KindAskQuestion {
			return nil
		}
		if event.CommandWord(in.Body) != "" {
			return nil
		}
		return e.Collect(ctx, t.sess, graph.DataKeyFor(block), strings.TrimSpace(in.Body), block.ID)
	case event.Contact:
		return e.Collect(ctx, t.sess, KeyPhone, in.Phone, block.ID)
	case event.Location:
		return e.Collect(ctx, t.sess, KeyLocation, in.String(), block.ID)
	case event.FileInput:
		f := &session.File{
			SessionID: t.sess.ID,
			StepID:    step.ID,
			FileID:    in.FileID,
			Kind:      in.Kind,
			Name:      in.Name,
			MIME:      in.MIME,
			Size:      in.Size,
		}
		if err := e.sessions.SaveFile(ctx, f); err != nil {
			return err
		}
		logger.Debug(ctx, "engine", "engine.file",
			slog.String("status", "ok"),
			slog.String("block_id", block.ID),
			slog.String("kind", in.Kind),
		)
	}
	return nil
}
