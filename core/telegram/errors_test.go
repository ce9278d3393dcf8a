package telegram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

func TestClassifyError(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"deadline", fmt.Errorf("send: %w", context.DeadlineExceeded), kindTimeout},
		{"dns timeout", &net.DNSError{Err: "i/o timeout", Name: "api.telegram.org", IsTimeout: true}, kindTimeout},
		{"dns", &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: &net.DNSError{Err: "no such host", Name: "api.telegram.org"}}, kindDNS},
		{"dial", &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: dial}, kindDial},
		{"api 403", tele.NewError(403, "Forbidden: bot was blocked by the user"), kind4xx},
		{"api 502", tele.NewError(502, "Bad Gateway"), kind5xx},
		{"code in text", errors.New("telegram: internal failure (500)"), kind5xx},
		{"plain", errors.New("boom"), kindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyError(tc.err))
		})
	}
	assert.Equal(t, "", classifyError(nil))
}

func TestTransportErrorRedactsToken(t *testing.T) {
	err := fmt.Errorf(`Post "https://api.telegram.org/bot123456:AAE-secret_token/sendMessage": %w`, context.DeadlineExceeded)
	te := transportError(err)
	assert.Equal(t, kindTimeout, te.Kind)
	assert.NotContains(t, te.Error(), "AAE-secret_token")
	assert.Contains(t, te.Error(), "bot<redacted>")
}
