package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/logger"
)

const (
	secretHeader   = "X-Telegram-Bot-Api-Secret-Token"
	maxUpdateBytes = 1 << 20
	// pushWait bounds how long a request waits for room in a bot's queue.
	pushWait = 2 * time.Second
)

// WebhookServer receives updates for every bot on one listener and forwards them
// to the owning bot's PushPoller.
type WebhookServer struct {
	secret  string
	mu      sync.RWMutex
	pollers map[string]*PushPoller
}

// NewWebhookServer returns a server that requires secret in the Telegram
// secret-token header when secret is non-empty.
func NewWebhookServer(secret string) *WebhookServer {
	return &WebhookServer{secret: secret, pollers: make(map[string]*PushPoller)}
}

// Attach routes updates for botID to p.
func (s *WebhookServer) Attach(botID string, p *PushPoller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pollers[botID] = p
}

// Handler returns the HTTP routes: GET /healthz and POST /tg/{botID}.
func (s *WebhookServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
	r.Post("/tg/{botID}", s.handleUpdate)
	return r
}

func (s *WebhookServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botID")
	ctx := logger.WithBot(r.Context(), botID)

	if s.secret != "" {
		got := r.Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) != 1 {
			logger.TG.LogAttrs(ctx, slog.LevelWarn, "webhook.reject",
				slog.String("status", "fail"),
				slog.String("reason", "secret"),
			)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	s.mu.RLock()
	p, ok := s.pollers[botID]
	s.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	var u tele.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUpdateBytes)).Decode(&u); err != nil {
		logger.TG.LogAttrs(ctx, slog.LevelWarn, "webhook.decode",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		http.Error(w, "bad update", http.StatusBadRequest)
		return
	}
	pushCtx, cancel := context.WithTimeout(ctx, pushWait)
	defer cancel()
	if err := p.Push(pushCtx, u); err != nil {
		// The update is dropped; any non-2xx would make Telegram redeliver it.
		logger.TG.LogAttrs(ctx, slog.LevelWarn, "webhook.busy",
			slog.String("status", "skip"),
			slog.String("outcome", "busy"),
			slog.Int("update_id", u.ID),
			slog.String("reason", err.Error()),
		)
	}
	w.WriteHeader(http.StatusOK)
}
