// Package callbacks decodes inline button presses back into graph tokens.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Token returns the graph button token carried by cb.
//
// Menus are sent with the raw token as callback_data. Buttons built through
// telebot's Data helper arrive as \f<unique>|<payload>; for those the unique
// part is the token.
func Token(cb *tele.Callback) string {
	if cb == nil {
		return ""
	}
	if cb.Unique != "" {
		return strings.TrimSpace(cb.Unique)
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	raw = strings.TrimPrefix(raw, "\\f")
	if raw != cb.Data {
		unique, _, _ := strings.Cut(raw, "|")
		return strings.TrimSpace(unique)
	}
	return strings.TrimSpace(cb.Data)
}
