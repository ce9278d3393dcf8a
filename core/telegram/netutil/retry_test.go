package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("wrap: %w", context.DeadlineExceeded), false},
		{"refused", &net.OpError{Op: "read", Err: syscall.ECONNREFUSED}, true},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("no route")}, true},
		{"reset in url error", &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: syscall.ECONNRESET}, true},
		{"timeout", &url.Error{Op: "Post", URL: "x", Err: timeoutErr{}}, true},
		{"dns permanent", &net.DNSError{Err: "no such host", Name: "x", IsNotFound: true}, false},
		{"dns temporary", &net.DNSError{Err: "server misbehaving", Name: "x", IsTemporary: true}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ShouldRetry(tc.err))
		})
	}
}
