package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/graph"
)

func TestParseMode(t *testing.T) {
	assert.Equal(t, tele.ModeDefault, ParseMode(graph.FormatPlain))
	assert.Equal(t, tele.ModeMarkdown, ParseMode(graph.FormatMarkdown))
	assert.Equal(t, tele.ModeMarkdownV2, ParseMode(graph.FormatMarkdownV2))
	assert.Equal(t, tele.ModeHTML, ParseMode(graph.FormatHTML))
}
