package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postUpdate(t *testing.T, h http.Handler, path, secret, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if secret != "" {
		req.Header.Set(secretHeader, secret)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookForwardsUpdates(t *testing.T) {
	srv := NewWebhookServer("s3cret")
	pp := NewPushPoller(4)
	srv.Attach("support", pp)
	h := srv.Handler()

	rec := postUpdate(t, h, "/tg/support", "s3cret", `{"update_id":11,"message":{"message_id":1,"date":1,"text":"hi","chat":{"id":42,"type":"private"},"from":{"id":42,"first_name":"Ann"}}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case u := <-pp.updates:
		assert.Equal(t, 11, u.ID)
		require.NotNil(t, u.Message)
		assert.Equal(t, "hi", u.Message.Text)
	default:
		t.Fatal("update not queued")
	}
}

func TestWebhookRejects(t *testing.T) {
	srv := NewWebhookServer("s3cret")
	srv.Attach("support", NewPushPoller(1))
	h := srv.Handler()

	assert.Equal(t, http.StatusForbidden, postUpdate(t, h, "/tg/support", "", `{}`).Code)
	assert.Equal(t, http.StatusForbidden, postUpdate(t, h, "/tg/support", "wrong", `{}`).Code)
	assert.Equal(t, http.StatusNotFound, postUpdate(t, h, "/tg/unknown", "s3cret", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, postUpdate(t, h, "/tg/support", "s3cret", `{not json`).Code)

	req := httptest.NewRequest(http.MethodGet, "/tg/support", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebhookHealth(t *testing.T) {
	h := NewWebhookServer("").Handler()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestWebhookFullQueueAcknowledgesAndDrops(t *testing.T) {
	srv := NewWebhookServer("")
	pp := NewPushPoller(1)
	srv.Attach("support", pp)
	h := srv.Handler()

	body := `{"update_id":1}`
	require.Equal(t, http.StatusOK, postUpdate(t, h, "/tg/support", "", body).Code)

	req := httptest.NewRequest(http.MethodPost, "/tg/support", strings.NewReader(body))
	ctx, cancel := context.WithCancel(req.Context())
	cancel()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(ctx))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, pp.updates, 1)
}
