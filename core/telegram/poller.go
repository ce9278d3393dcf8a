package telegram

import (
	"context"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

const defaultLongPollTimeout = 10 * time.Second

// PollerOptions configures BuildPoller.
type PollerOptions struct {
	RunMode                string
	LongPollTimeoutSeconds int
	// QueueSize bounds updates waiting for the bot loop in webhook mode.
	QueueSize int
}

// BuildPoller returns a Telebot poller based on provided options. Webhook mode
// yields a *PushPoller fed by the shared HTTP listener.
func BuildPoller(opts PollerOptions) tele.Poller {
	runMode := strings.ToLower(strings.TrimSpace(opts.RunMode))
	if runMode == "webhook" {
		return NewPushPoller(opts.QueueSize)
	}

	timeout := defaultLongPollTimeout
	if opts.LongPollTimeoutSeconds > 0 {
		timeout = time.Duration(opts.LongPollTimeoutSeconds) * time.Second
	}
	return &tele.LongPoller{Timeout: timeout}
}

// PushPoller hands updates received elsewhere (the webhook server) to a bot's
// processing loop.
type PushPoller struct {
	updates chan tele.Update
}

// NewPushPoller returns a poller buffering up to size updates.
func NewPushPoller(size int) *PushPoller {
	if size <= 0 {
		size = 100
	}
	return &PushPoller{updates: make(chan tele.Update, size)}
}

// Push queues u, giving up when ctx ends first.
func (p *PushPoller) Push(ctx context.Context, u tele.Update) error {
	select {
	case p.updates <- u:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll implements tele.Poller.
func (p *PushPoller) Poll(_ *tele.Bot, dest chan tele.Update, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case u := <-p.updates:
			select {
			case dest <- u:
			case <-stop:
				return
			}
		}
	}
}
