package graph

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `[
  {"id": "1", "label": "Welcome", "action": "send_text", "text": "Hi!", "next": "2", "trigger": "/start"},
  {"id": "2", "label": "Main menu", "action": "send_menu", "text": "Pick one",
   "buttons": [[{"label": "Go", "token": "3"}, {"label": "Site", "url": "https://example.com"}],
               [{"label": "Ask", "token": "btn_ask", "target": "4"}]]},
  {"id": "3", "label": "Three", "action": "send_text", "text": "three"},
  {"id": "4", "label": "Your name", "action": "ask_question", "text": "Name?"},
  {"id": "5", "label": "Doc", "action": "send_file", "file": {"id": "FILE123"}, "caption": "here"},
  {"id": "6", "label": "Operator", "action": "handoff", "text": "Connecting"}
]`

func TestParseBuildsTypedActions(t *testing.T) {
	g, err := Parse([]byte(sampleJSON))
	require.NoError(t, err)
	require.Equal(t, 6, g.Len())
	assert.Empty(t, g.Warnings())

	first := g.First()
	require.NotNil(t, first)
	assert.Equal(t, "1", first.ID)
	assert.Equal(t, KindSendText, first.Kind())
	assert.Equal(t, "2", first.Next)

	menu, ok := g.ByID("2")
	require.True(t, ok)
	require.True(t, menu.IsMenu())
	rows := menu.Action.(SendMenu).Rows
	require.Len(t, rows, 2)
	assert.Equal(t, "https://example.com", rows[0][1].URL)

	file, _ := g.ByID("5")
	assert.Equal(t, SendFile{File: FileRef{ID: "FILE123"}, Caption: "here"}, file.Action)

	start, ok := g.ByTrigger("/start")
	require.True(t, ok)
	assert.Equal(t, "1", start.ID)
}

func TestParseRejectsMalformedDefinitions(t *testing.T) {
	cases := map[string]string{
		"duplicate id":     `[{"id":"1","action":"send_text","text":"a"},{"id":"1","action":"send_text","text":"b"}]`,
		"missing id":       `[{"action":"send_text","text":"a"}]`,
		"missing action":   `[{"id":"1","text":"a"}]`,
		"unknown field":    `[{"id":"1","action":"send_text","text":"a","nxt":"2"}]`,
		"menu no buttons":  `[{"id":"1","action":"send_menu","text":"a"}]`,
		"button no token":  `[{"id":"1","action":"send_menu","text":"a","buttons":[[{"label":"x"}]]}]`,
		"file two sources": `[{"id":"1","action":"send_file","file":{"id":"x","url":"https://x"}}]`,
		"bad format":       `[{"id":"1","action":"send_text","text":"a","format":"rtf"}]`,
		"not an array":     `{"id":"1"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			require.Error(t, err)
			var cfgErr *ConfigError
			assert.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, "CONFIGURATION_ERROR", cfgErr.Code())
		})
	}
}

func TestParseRejectsTokensTelegramCannotCarry(t *testing.T) {
	menu := func(token string) []byte {
		return []byte(`[{"id":"m","action":"send_menu","text":"Pick","buttons":[[{"label":"Go","token":"` + token + `"}]]}]`)
	}

	_, err := Parse(menu(strings.Repeat("x", MaxTokenLen+1)))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "m", cfgErr.BlockID)
	assert.Contains(t, err.Error(), "65 bytes")

	// Multi-byte runes count by bytes, not characters.
	_, err = Parse(menu(strings.Repeat("é", 33)))
	require.ErrorAs(t, err, &cfgErr)

	g, err := Parse(menu(strings.Repeat("x", MaxTokenLen)))
	require.NoError(t, err)
	ref, ok := g.ButtonByToken(strings.Repeat("x", MaxTokenLen))
	assert.True(t, ok)
	assert.Equal(t, "Go", ref.Button.Label)
}

func TestParseKeepsUnsupportedKinds(t *testing.T) {
	g, err := Parse([]byte(`[{"id":"1","action":"send_poll","text":"?"}]`))
	require.NoError(t, err)
	b, _ := g.ByID("1")
	assert.Equal(t, Unsupported{Name: "send_poll"}, b.Action)
	assert.Equal(t, ActionKind("send_poll"), b.Kind())
}

func TestEmptyGraphIsValid(t *testing.T) {
	for _, raw := range []string{``, `null`, `[]`} {
		g, err := Parse([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, 0, g.Len())
		assert.Nil(t, g.First())
	}
}

func TestButtonByTokenFirstDeclarationWins(t *testing.T) {
	raw := `[
	  {"id":"a","action":"send_menu","text":"A","buttons":[[{"label":"x","token":"dup","target":"t1"}]]},
	  {"id":"b","action":"send_menu","text":"B","buttons":[[{"label":"y","token":"dup","target":"t2"}]]},
	  {"id":"c","action":"send_menu","text":"C","buttons":[[{"label":"p","token":"row"}],[{"label":"q","token":"row"}]]},
	  {"id":"t1","action":"send_text","text":"1"},
	  {"id":"t2","action":"send_text","text":"2"}
	]`
	for i := 0; i < 20; i++ {
		g, err := Parse([]byte(raw))
		require.NoError(t, err)

		ref, ok := g.ButtonByToken("dup")
		require.True(t, ok)
		assert.Equal(t, "a", ref.Owner.ID)
		assert.Equal(t, "t1", ref.Button.Target)

		ref, ok = g.ButtonByToken("row")
		require.True(t, ok)
		assert.Equal(t, 0, ref.Row)
		assert.Equal(t, "p", ref.Button.Label)
	}
}

func TestDanglingReferencesAreWarnings(t *testing.T) {
	g, err := Parse([]byte(`[{"id":"1","action":"send_menu","text":"m","next":"404","buttons":[[{"label":"x","token":"t","target":"nope"}]]}]`))
	require.NoError(t, err)
	assert.Len(t, g.Warnings(), 2)
}

func TestParseYAML(t *testing.T) {
	raw := `
- id: q
  label: Favourite colour
  action: ask_question
  text: Which colour?
  next: bye
- id: bye
  action: send_text
  text: Thanks
`
	g, err := ParseYAML([]byte(raw))
	require.NoError(t, err)
	q, _ := g.ByID("q")
	assert.Equal(t, "favourite_colour", DataKeyFor(q))

	_, err = ParseYAML([]byte("- id: x\n  action: send_text\n  text: a\n  bogus: 1\n"))
	require.Error(t, err)
}

func TestDataKeyFor(t *testing.T) {
	assert.Equal(t, "email", DataKeyFor(&Block{ID: "1", Label: "Mail", Action: AskQuestion{Body: "?", DataKey: "email"}}))
	assert.Equal(t, "your_e_mail", DataKeyFor(&Block{ID: "1", Label: "  Your E-mail! ", Action: AskQuestion{Body: "?"}}))
	assert.Equal(t, "7", DataKeyFor(&Block{ID: "7", Label: "???", Action: AskQuestion{Body: "?"}}))
}
