package event

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/m3rciful/flowbot/core/session"
)

func TestClassifyPriority(t *testing.T) {
	doc := &Attachment{FileID: "DOC", Name: "cv.pdf", MIME: "application/pdf", Size: 10}
	photo := &Attachment{FileID: "PH"}
	contact := &ContactInfo{Phone: "+15550100", FirstName: "Ann", LastName: "Lee"}
	loc := &Coordinates{Lat: 52.52, Lon: 13.405}

	cases := []struct {
		name string
		in   Payload
		want Input
	}{
		{"callback wins", Payload{Callback: "btn", Text: "hi", Document: doc}, ButtonPress{Token: "btn"}},
		{"text over document", Payload{Text: "hi", Document: doc}, Text{Body: "hi"}},
		{"document over photo", Payload{Document: doc, Photo: photo}, FileInput{Kind: FileDocument, FileID: "DOC", Name: "cv.pdf", Size: 10, MIME: "application/pdf"}},
		{"photo over contact", Payload{Photo: photo, Contact: contact}, FileInput{Kind: FilePhoto, FileID: "PH"}},
		{"contact over location", Payload{Contact: contact, Location: loc}, Contact{Phone: "+15550100", Name: "Ann Lee"}},
		{"location", Payload{Location: loc}, Location{Lat: 52.52, Lon: 13.405}},
		{"blank text is unknown", Payload{Text: "   "}, Unknown{}},
		{"empty", Payload{}, Unknown{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.in))
		})
	}
}

func TestInputTypesAndRaw(t *testing.T) {
	assert.Equal(t, session.InputButton, ButtonPress{Token: "x"}.Type())
	assert.Equal(t, session.InputNone, Unknown{}.Type())
	assert.Equal(t, "52.520000,13.405000", Location{Lat: 52.52, Lon: 13.405}.Raw())
	assert.Equal(t, "cv.pdf", FileInput{FileID: "DOC", Name: "cv.pdf"}.Raw())
	assert.Equal(t, "DOC", FileInput{FileID: "DOC"}.Raw())
}

func TestCommandWord(t *testing.T) {
	assert.Equal(t, "/start", CommandWord("/start"))
	assert.Equal(t, "/start", CommandWord("  /Start@flow_bot ref42"))
	assert.Equal(t, "/help", CommandWord("/help me"))
	assert.Equal(t, "", CommandWord("start"))
	assert.Equal(t, "", CommandWord("/"))
}
