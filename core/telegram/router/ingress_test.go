package router

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/event"
	"github.com/m3rciful/flowbot/core/worker"
)

type recorder struct {
	mu       sync.Mutex
	payloads []event.Payload
}

func (r *recorder) handle(_ context.Context, botID string, p event.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.BotID = botID
	r.payloads = append(r.payloads, p)
	return nil
}

func (r *recorder) got() []event.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Payload(nil), r.payloads...)
}

func testBot(t *testing.T) (*tele.Bot, *[]string) {
	t.Helper()
	var (
		mu      sync.Mutex
		methods []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:])
		mu.Unlock()
		_, _ = io.WriteString(w, `{"ok":true,"result":true}`)
	}))
	t.Cleanup(srv.Close)
	b, err := tele.NewBot(tele.Settings{Token: "1:test", URL: srv.URL, Client: srv.Client(), Offline: true, Synchronous: true})
	require.NoError(t, err)
	return b, &methods
}

func TestIngressInline(t *testing.T) {
	b, methods := testBot(t)
	rec := &recorder{}
	routes := IngressRoutes(IngressOptions{BotID: "support", Handler: rec.handle})
	require.Len(t, routes, 6)
	h := routes[0].Handler

	require.NoError(t, h(b.NewContext(tele.Update{ID: 1, Message: &tele.Message{Sender: ann, Text: "hello"}})))
	require.NoError(t, h(b.NewContext(tele.Update{ID: 2, Callback: &tele.Callback{ID: "cb1", Sender: ann, Data: "btn_a"}})))
	require.NoError(t, h(b.NewContext(tele.Update{ID: 3})))

	got := rec.got()
	require.Len(t, got, 2)
	assert.Equal(t, "hello", got[0].Text)
	assert.Equal(t, "btn_a", got[1].Callback)
	assert.Equal(t, "support", got[1].BotID)
	assert.Contains(t, *methods, "answerCallbackQuery")
}

func TestIngressQueuesPerUser(t *testing.T) {
	b, _ := testBot(t)
	rec := &recorder{}
	pool := worker.New(worker.Options{Shards: 2, QueueSize: 64})
	h := IngressRoutes(IngressOptions{BotID: "support", Handler: rec.handle, Pool: pool})[0].Handler

	for i := 1; i <= 5; i++ {
		require.NoError(t, h(b.NewContext(tele.Update{ID: i, Message: &tele.Message{Sender: ann, Text: "m"}})))
	}
	pool.Close()

	got := rec.got()
	require.Len(t, got, 5)
	for i, p := range got {
		assert.Equal(t, i+1, p.UpdateID)
	}
}

func TestIngressReportsBusy(t *testing.T) {
	b, _ := testBot(t)
	pool := worker.New(worker.Options{Shards: 1, QueueSize: 1})
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	handler := func(ctx context.Context, _ string, _ event.Payload) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	}
	busy := 0
	h := IngressRoutes(IngressOptions{
		BotID:   "support",
		Handler: handler,
		Pool:    pool,
		Busy:    func(tele.Context) error { busy++; return nil },
	})[0].Handler

	upd := func(id int) tele.Context {
		return b.NewContext(tele.Update{ID: id, Message: &tele.Message{Sender: ann, Text: "m"}})
	}
	require.NoError(t, h(upd(1)))
	<-started
	require.NoError(t, h(upd(2)))
	require.NoError(t, h(upd(3)))
	close(block)
	pool.Close()

	assert.Equal(t, 1, busy)
}
