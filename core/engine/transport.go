package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/m3rciful/flowbot/core/graph"
)

// Destination addresses one user of one bot.
type Destination struct {
	BotID  string
	UserID string
}

// OutboundAction is what the transport is asked to deliver: Text, Menu, File or HandoffNotice.
type OutboundAction interface {
	ActionName() string
}

type Text struct {
	Body   string
	Format graph.Format
}

type Menu struct {
	Body   string
	Format graph.Format
	Rows   [][]MenuButton
}

// MenuButton is either a callback button (Token) or a link (URL).
type MenuButton struct {
	Label string
	Token string
	URL   string
}

type File struct {
	Ref     graph.FileRef
	Caption string
}

type HandoffNotice struct {
	Body string
}

func (Text) ActionName() string          { return "text" }
func (Menu) ActionName() string          { return "menu" }
func (File) ActionName() string          { return "file" }
func (HandoffNotice) ActionName() string { return "handoff" }

// Response is the transport's acknowledgement of a delivered action.
type Response struct {
	Summary string
	Raw     []byte
}

// Transport delivers outbound actions. Implementations should honour ctx deadlines.
type Transport interface {
	Send(ctx context.Context, dest Destination, action OutboundAction) (Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, dest Destination, action OutboundAction) (Response, error)

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, dest Destination, action OutboundAction) (Response, error) {
	return f(ctx, dest, action)
}

// TransportError is a failed delivery. Kind is one of timeout, dial, dns, tls,
// http_4xx, http_5xx or unknown.
type TransportError struct {
	Kind string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Code returns a stable identifier for logs.
func (e *TransportError) Code() string { return "TRANSPORT_ERROR" }

// AsTransportError returns err as a *TransportError, classifying plain errors
// as timeout when the deadline fired and unknown otherwise.
func AsTransportError(err error) *TransportError {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	kind := "unknown"
	if errors.Is(err, context.DeadlineExceeded) {
		kind = "timeout"
	}
	return &TransportError{Kind: kind, Err: err}
}
