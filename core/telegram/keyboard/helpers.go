// Package keyboard builds Telegram inline keyboards for menu blocks.
package keyboard

import tele "gopkg.in/telebot.v4"

// InlineBtn describes one inline button. Data is sent verbatim as callback_data;
// URL, when set, makes the button a link and Data is ignored.
type InlineBtn struct {
	Text string
	Data string
	URL  string
}

// InlineButtonsRows builds an inline keyboard from rows of InlineBtn. Empty rows are dropped.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	inline := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			if btn.URL != "" {
				r[j] = tele.InlineButton{Text: btn.Text, URL: btn.URL}
				continue
			}
			r[j] = tele.InlineButton{Text: btn.Text, Data: btn.Data}
		}
		inline = append(inline, r)
	}
	markup.InlineKeyboard = inline
	return markup
}
