package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineButtonsRows(t *testing.T) {
	markup := InlineButtonsRows(
		[]InlineBtn{{Text: "Ask", Data: "ask"}, {Text: "Docs", Data: "docs"}},
		nil,
		[]InlineBtn{{Text: "Site", URL: "https://example.com", Data: "ignored"}},
	)
	require.Len(t, markup.InlineKeyboard, 2)
	require.Len(t, markup.InlineKeyboard[0], 2)
	assert.Equal(t, "ask", markup.InlineKeyboard[0][0].Data)
	assert.Equal(t, "Docs", markup.InlineKeyboard[0][1].Text)
	assert.Equal(t, "https://example.com", markup.InlineKeyboard[1][0].URL)
	assert.Empty(t, markup.InlineKeyboard[1][0].Data)
}
