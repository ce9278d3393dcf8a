package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/graph"
)

func TestRegistry(t *testing.T) {
	api := newFakeAPI(t, nil)
	reg := NewRegistry()
	reg.Register("b", api.bot(t))
	reg.Register("a", api.bot(t))
	reg.Register("", api.bot(t))
	reg.Register("c", nil)

	assert.Equal(t, []string{"a", "b"}, reg.IDs())
	_, ok := reg.Bot("a")
	assert.True(t, ok)

	reg.Remove("a")
	_, ok = reg.Bot("a")
	assert.False(t, ok)
}

func TestCommandsFromGraph(t *testing.T) {
	g, err := graph.Parse([]byte(`[
	  {"id":"1","label":"Start over","action":"send_text","text":"hi","trigger":"/start"},
	  {"id":"2","action":"send_text","text":"help","trigger":"/help"},
	  {"id":"3","action":"send_text","text":"plain"}
	]`))
	require.NoError(t, err)

	assert.Equal(t, []tele.Command{
		{Text: "help", Description: "2"},
		{Text: "start", Description: "Start over"},
	}, CommandsFromGraph(g))
	assert.Nil(t, CommandsFromGraph(nil))
}
