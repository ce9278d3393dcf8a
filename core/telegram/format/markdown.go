// Package format maps block text formats onto Telegram parse modes.
package format

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/graph"
)

// ParseMode returns the Telegram parse mode for f; plain text has none.
func ParseMode(f graph.Format) tele.ParseMode {
	switch f {
	case graph.FormatMarkdown:
		return tele.ModeMarkdown
	case graph.FormatMarkdownV2:
		return tele.ModeMarkdownV2
	case graph.FormatHTML:
		return tele.ModeHTML
	}
	return tele.ModeDefault
}
