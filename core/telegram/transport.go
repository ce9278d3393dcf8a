package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/engine"
	"github.com/m3rciful/flowbot/core/graph"
	"github.com/m3rciful/flowbot/core/telegram/format"
	"github.com/m3rciful/flowbot/core/telegram/keyboard"
)

// Transport delivers engine actions through the bots held in a Registry.
type Transport struct {
	reg *Registry
}

var _ engine.Transport = (*Transport)(nil)

// NewTransport returns a Transport that looks bots up in reg at send time.
func NewTransport(reg *Registry) *Transport {
	return &Transport{reg: reg}
}

type sentMessage struct {
	MessageID int   `json:"message_id"`
	ChatID    int64 `json:"chat_id"`
	Date      int64 `json:"date"`
}

// Send renders action for Telegram and waits for the Bot API answer or ctx.
// A send abandoned on ctx may still be delivered by Telegram.
func (t *Transport) Send(ctx context.Context, dest engine.Destination, action engine.OutboundAction) (engine.Response, error) {
	bot, ok := t.reg.Bot(dest.BotID)
	if !ok {
		return engine.Response{}, &engine.TransportError{Kind: "unknown", Err: fmt.Errorf("bot %q not running", dest.BotID)}
	}
	chatID, err := strconv.ParseInt(dest.UserID, 10, 64)
	if err != nil {
		return engine.Response{}, &engine.TransportError{Kind: "unknown", Err: fmt.Errorf("user id %q: %w", dest.UserID, err)}
	}

	what, opts, err := render(action)
	if err != nil {
		return engine.Response{}, &engine.TransportError{Kind: "unknown", Err: err}
	}

	type result struct {
		msg *tele.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := bot.Send(tele.ChatID(chatID), what, opts)
		done <- result{msg: msg, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return engine.Response{}, &engine.TransportError{Kind: "timeout", Err: ctx.Err()}
	case res = <-done:
	}
	if res.err != nil {
		return engine.Response{}, transportError(res.err)
	}
	return response(res.msg), nil
}

func render(action engine.OutboundAction) (any, *tele.SendOptions, error) {
	switch a := action.(type) {
	case engine.Text:
		return a.Body, &tele.SendOptions{ParseMode: format.ParseMode(a.Format)}, nil
	case engine.HandoffNotice:
		return a.Body, &tele.SendOptions{}, nil
	case engine.Menu:
		rows := make([][]keyboard.InlineBtn, 0, len(a.Rows))
		for _, row := range a.Rows {
			out := make([]keyboard.InlineBtn, 0, len(row))
			for _, btn := range row {
				out = append(out, keyboard.InlineBtn{Text: btn.Label, Data: btn.Token, URL: btn.URL})
			}
			rows = append(rows, out)
		}
		return a.Body, &tele.SendOptions{
			ParseMode:   format.ParseMode(a.Format),
			ReplyMarkup: keyboard.InlineButtonsRows(rows...),
		}, nil
	case engine.File:
		return document(a.Ref, a.Caption), &tele.SendOptions{}, nil
	}
	return nil, nil, fmt.Errorf("unsupported action %q", action.ActionName())
}

func document(ref graph.FileRef, caption string) *tele.Document {
	var file tele.File
	switch {
	case ref.ID != "":
		file = tele.File{FileID: ref.ID}
	case ref.URL != "":
		file = tele.FromURL(ref.URL)
	default:
		file = tele.FromDisk(ref.Path)
	}
	return &tele.Document{File: file, Caption: caption, FileName: ref.Name, MIME: ref.MIME}
}

func response(msg *tele.Message) engine.Response {
	if msg == nil {
		return engine.Response{Summary: "sent"}
	}
	sm := sentMessage{MessageID: msg.ID, Date: msg.Unixtime}
	if msg.Chat != nil {
		sm.ChatID = msg.Chat.ID
	}
	raw, _ := json.Marshal(sm)
	return engine.Response{Summary: fmt.Sprintf("message %d", msg.ID), Raw: raw}
}
