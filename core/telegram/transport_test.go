package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/flowbot/core/engine"
	"github.com/m3rciful/flowbot/core/graph"
)

func newTransport(t *testing.T, api *fakeAPI) *Transport {
	t.Helper()
	reg := NewRegistry()
	reg.Register("support", api.bot(t))
	return NewTransport(reg)
}

var dest = engine.Destination{BotID: "support", UserID: "42"}

func TestTransportSendText(t *testing.T) {
	api := newFakeAPI(t, nil)
	tr := newTransport(t, api)

	resp, err := tr.Send(context.Background(), dest, engine.Text{Body: "*hi*", Format: graph.FormatMarkdown})
	require.NoError(t, err)
	assert.Equal(t, "message 7", resp.Summary)

	var raw sentMessage
	require.NoError(t, json.Unmarshal(resp.Raw, &raw))
	assert.Equal(t, 7, raw.MessageID)
	assert.Equal(t, int64(42), raw.ChatID)

	methods, bodies := api.calls()
	require.Equal(t, []string{"sendMessage"}, methods)
	assert.Contains(t, bodies[0], "chat_id")
	assert.Contains(t, bodies[0], "42")
	assert.Contains(t, bodies[0], "Markdown")
}

func TestTransportSendMenuCarriesTokens(t *testing.T) {
	api := newFakeAPI(t, nil)
	tr := newTransport(t, api)

	menu := engine.Menu{
		Body: "Pick one",
		Rows: [][]engine.MenuButton{
			{{Label: "Sales", Token: "btn_sales"}, {Label: "Docs", URL: "https://example.com"}},
		},
	}
	_, err := tr.Send(context.Background(), dest, menu)
	require.NoError(t, err)

	_, bodies := api.calls()
	require.Len(t, bodies, 1)
	assert.Contains(t, bodies[0], "btn_sales")
	assert.Contains(t, bodies[0], "example.com")
}

func TestTransportSendFileByID(t *testing.T) {
	api := newFakeAPI(t, nil)
	tr := newTransport(t, api)

	_, err := tr.Send(context.Background(), dest, engine.File{Ref: graph.FileRef{ID: "AgADfile"}, Caption: "price list"})
	require.NoError(t, err)

	methods, bodies := api.calls()
	require.Equal(t, []string{"sendDocument"}, methods)
	assert.Contains(t, bodies[0], "AgADfile")
	assert.Contains(t, bodies[0], "price list")
}

func TestTransportClassifiesAPIErrors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		payload string
		kind    string
	}{
		{"client error", http.StatusBadRequest, `{"ok":false,"error_code":400,"description":"Bad Request: odd input"}`, "http_4xx"},
		{"server error", http.StatusBadGateway, `{"ok":false,"error_code":502,"description":"Bad Gateway"}`, "http_5xx"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := newFakeAPI(t, func(string) (int, string) { return tc.status, tc.payload })
			tr := newTransport(t, api)

			_, err := tr.Send(context.Background(), dest, engine.Text{Body: "x"})
			var te *engine.TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tc.kind, te.Kind)
			assert.NotContains(t, te.Error(), testToken)
		})
	}
}

func TestTransportHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	api := newFakeAPI(t, func(string) (int, string) {
		<-release
		return http.StatusOK, `{"ok":true,"result":{"message_id":1,"date":1,"chat":{"id":42,"type":"private"}}}`
	})
	t.Cleanup(func() { close(release) })
	tr := newTransport(t, api)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := tr.Send(ctx, dest, engine.Text{Body: "slow"})
	var te *engine.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "timeout", te.Kind)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestTransportRejectsUnknownDestination(t *testing.T) {
	api := newFakeAPI(t, nil)
	tr := newTransport(t, api)

	_, err := tr.Send(context.Background(), engine.Destination{BotID: "other", UserID: "42"}, engine.Text{Body: "x"})
	assert.Error(t, err)

	_, err = tr.Send(context.Background(), engine.Destination{BotID: "support", UserID: "not-a-number"}, engine.Text{Body: "x"})
	assert.Error(t, err)

	methods, _ := api.calls()
	assert.Empty(t, methods)
}
