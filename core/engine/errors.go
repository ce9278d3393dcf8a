package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrBotNotFound is returned when the definition store has no such bot.
	ErrBotNotFound = errors.New("engine: bot not found")
	// ErrBotInactive is returned when the bot exists but is switched off.
	ErrBotInactive = errors.New("engine: bot inactive")
)

// ResolutionError reports a button token that matches no block and no button.
type ResolutionError struct {
	Token string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve: no block or button for token %q", e.Token)
}

// Code returns a stable identifier for logs.
func (e *ResolutionError) Code() string { return "RESOLUTION_FAILURE" }

type coder interface {
	Code() string
}

// ErrorCode extracts the taxonomy code of err, or "" when it has none.
func ErrorCode(err error) string {
	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return ""
}
