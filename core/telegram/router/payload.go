package router

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/event"
	"github.com/m3rciful/flowbot/core/session"
	"github.com/m3rciful/flowbot/core/telegram/callbacks"
)

// PayloadFromUpdate flattens a Telegram update into the transport-neutral payload
// the engine consumes. Updates without a sender yield an empty UserID.
func PayloadFromUpdate(botID string, u tele.Update) event.Payload {
	p := event.Payload{BotID: botID, UpdateID: u.ID}

	if cb := u.Callback; cb != nil {
		p.Callback = callbacks.Token(cb)
		setSender(&p, cb.Sender)
		if p.UserID == "" && cb.Message != nil {
			setSender(&p, cb.Message.Sender)
		}
		return p
	}

	msg := u.Message
	if msg == nil {
		return p
	}
	setSender(&p, msg.Sender)
	if p.UserID == "" && msg.Chat != nil && msg.Chat.Type == tele.ChatPrivate {
		p.UserID = strconv.FormatInt(msg.Chat.ID, 10)
	}

	p.Text = msg.Text
	if doc := msg.Document; doc != nil {
		p.Document = &event.Attachment{
			FileID: doc.FileID,
			Name:   doc.FileName,
			Size:   doc.FileSize,
			MIME:   doc.MIME,
		}
	}
	if photo := msg.Photo; photo != nil {
		p.Photo = &event.Attachment{
			FileID: photo.FileID,
			Size:   photo.FileSize,
			MIME:   "image/jpeg",
		}
	}
	if c := msg.Contact; c != nil {
		p.Contact = &event.ContactInfo{
			Phone:     strings.TrimSpace(c.PhoneNumber),
			FirstName: c.FirstName,
			LastName:  c.LastName,
		}
	}
	if loc := msg.Location; loc != nil {
		p.Location = &event.Coordinates{
			Lat: float64(loc.Lat),
			Lon: float64(loc.Lng),
		}
	}
	return p
}

func setSender(p *event.Payload, u *tele.User) {
	if u == nil || u.ID == 0 {
		return
	}
	p.UserID = strconv.FormatInt(u.ID, 10)
	p.Profile = session.Profile{
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Language:  u.LanguageCode,
	}
}
