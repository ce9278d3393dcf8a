package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/event"
	"github.com/m3rciful/flowbot/core/session"
)

var ann = &tele.User{ID: 42, Username: "ann", FirstName: "Ann", LastName: "Lee", LanguageCode: "en"}

func TestPayloadFromText(t *testing.T) {
	p := PayloadFromUpdate("support", tele.Update{
		ID:      9,
		Message: &tele.Message{Sender: ann, Text: "/start", Chat: &tele.Chat{ID: 42, Type: tele.ChatPrivate}},
	})
	assert.Equal(t, "support", p.BotID)
	assert.Equal(t, 9, p.UpdateID)
	assert.Equal(t, "42", p.UserID)
	assert.Equal(t, "/start", p.Text)
	assert.Equal(t, session.Profile{Username: "ann", FirstName: "Ann", LastName: "Lee", Language: "en"}, p.Profile)
	assert.IsType(t, event.Text{}, event.Classify(p))
}

func TestPayloadFromCallback(t *testing.T) {
	p := PayloadFromUpdate("support", tele.Update{
		ID:       10,
		Callback: &tele.Callback{Sender: ann, Data: "btn_sales"},
	})
	assert.Equal(t, "btn_sales", p.Callback)
	assert.Equal(t, "42", p.UserID)
	assert.Equal(t, event.ButtonPress{Token: "btn_sales"}, event.Classify(p))
}

func TestPayloadFromAttachments(t *testing.T) {
	doc := &tele.Document{File: tele.File{FileID: "doc-1", FileSize: 2048}, FileName: "cv.pdf", MIME: "application/pdf"}
	p := PayloadFromUpdate("support", tele.Update{Message: &tele.Message{Sender: ann, Document: doc, Caption: "my cv"}})
	require.NotNil(t, p.Document)
	assert.Equal(t, event.Attachment{FileID: "doc-1", Name: "cv.pdf", Size: 2048, MIME: "application/pdf"}, *p.Document)
	assert.Equal(t, event.FileDocument, event.Classify(p).(event.FileInput).Kind)

	photo := &tele.Photo{File: tele.File{FileID: "ph-1", FileSize: 100}}
	p = PayloadFromUpdate("support", tele.Update{Message: &tele.Message{Sender: ann, Photo: photo}})
	require.NotNil(t, p.Photo)
	assert.Equal(t, "ph-1", p.Photo.FileID)

	p = PayloadFromUpdate("support", tele.Update{Message: &tele.Message{Sender: ann, Contact: &tele.Contact{PhoneNumber: " +100 "}}})
	require.NotNil(t, p.Contact)
	assert.Equal(t, "+100", p.Contact.Phone)

	p = PayloadFromUpdate("support", tele.Update{Message: &tele.Message{Sender: ann, Location: &tele.Location{Lat: 1.5, Lng: -2.25}}})
	require.NotNil(t, p.Location)
	assert.Equal(t, event.Coordinates{Lat: 1.5, Lon: -2.25}, *p.Location)
}

func TestPayloadWithoutSender(t *testing.T) {
	p := PayloadFromUpdate("support", tele.Update{ID: 3})
	assert.Empty(t, p.UserID)
	assert.IsType(t, event.Unknown{}, event.Classify(p))

	p = PayloadFromUpdate("support", tele.Update{Message: &tele.Message{Text: "x", Chat: &tele.Chat{ID: 77, Type: tele.ChatPrivate}}})
	assert.Equal(t, "77", p.UserID)
}
