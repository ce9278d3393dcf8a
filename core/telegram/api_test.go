package telegram

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

const testToken = "123456:test-token"

// fakeAPI is a Bot API stand-in recording every call.
type fakeAPI struct {
	srv *httptest.Server

	mu      sync.Mutex
	methods []string
	bodies  []string
	reply   func(method string) (int, string)
}

func newFakeAPI(t *testing.T, reply func(method string) (int, string)) *fakeAPI {
	t.Helper()
	f := &fakeAPI{reply: reply}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.methods = append(f.methods, method)
		f.bodies = append(f.bodies, string(body))
		f.mu.Unlock()

		status, payload := http.StatusOK, `{"ok":true,"result":{"message_id":7,"date":1700000000,"chat":{"id":42,"type":"private"}}}`
		if f.reply != nil {
			status, payload = f.reply(method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, payload)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) calls() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.methods...), append([]string(nil), f.bodies...)
}

func (f *fakeAPI) bot(t *testing.T) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{
		Token:   testToken,
		URL:     f.srv.URL,
		Client:  f.srv.Client(),
		Offline: true,
		Poller:  NewPushPoller(1),
	})
	require.NoError(t, err)
	return b
}
