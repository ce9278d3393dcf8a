package telegram

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/engine"
)

// Transport failure kinds reported in engine.TransportError.Kind.
const (
	kindTimeout = "timeout"
	kindDNS     = "dns"
	kindDial    = "dial"
	kindTLS     = "tls"
	kind4xx     = "http_4xx"
	kind5xx     = "http_5xx"
	kindUnknown = "unknown"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// transportError wraps a Bot API failure with its kind. The message is
// scrubbed of bot tokens because it ends up in logs and session history.
func transportError(err error) *engine.TransportError {
	if err == nil {
		return nil
	}
	return &engine.TransportError{Kind: classifyError(err), Err: errors.New(sanitizeErrorMessage(err))}
}

// classifiers run in order; the first non-empty answer wins. errors.As walks
// wrapped chains (url.Error, net.OpError), so nested causes are found too.
var classifiers = []func(error) string{
	func(err error) string {
		if errors.Is(err, context.DeadlineExceeded) {
			return kindTimeout
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return kindTimeout
		}
		return ""
	},
	func(err error) string {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return kindDNS
		}
		return ""
	},
	func(err error) string {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return kindDial
		}
		return ""
	},
	func(err error) string {
		var alert tls.AlertError
		var verify *tls.CertificateVerificationError
		if errors.As(err, &alert) || errors.As(err, &verify) {
			return kindTLS
		}
		return ""
	},
	func(err error) string {
		switch code := httpStatusFromError(err); {
		case code >= 500:
			return kind5xx
		case code >= 400:
			return kind4xx
		}
		return ""
	},
}

func classifyError(err error) string {
	if err == nil {
		return ""
	}
	for _, classify := range classifiers {
		if kind := classify(err); kind != "" {
			return kind
		}
	}
	return kindUnknown
}

// sanitizeErrorMessage replaces bot tokens in err's text.
func sanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

// httpStatusFromError recovers the Bot API error code. telebot reports most
// failures as *tele.Error; flood and group-migration errors have their own
// types, and some transport errors only carry the code as "(NNN)" in the text.
func httpStatusFromError(err error) int {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return http.StatusTooManyRequests
	}
	var group tele.GroupError
	if errors.As(err, &group) {
		return http.StatusBadRequest
	}

	msg := err.Error()
	open, end := strings.LastIndex(msg, "("), strings.LastIndex(msg, ")")
	if open < 0 || end <= open+1 {
		return 0
	}
	code, convErr := strconv.Atoi(strings.TrimSpace(msg[open+1 : end]))
	if convErr != nil {
		return 0
	}
	return code
}
