// Package event normalizes transport payloads into a single typed input.
package event

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/m3rciful/flowbot/core/session"
)

// Payload is the transport-neutral shape of one inbound update. At most one of the
// content fields is expected to be set, but the classifier tolerates several.
type Payload struct {
	BotID    string
	UpdateID int
	UserID   string
	Profile  session.Profile

	Callback string // button token, when the update is a button press
	Text     string
	Document *Attachment
	Photo    *Attachment
	Contact  *ContactInfo
	Location *Coordinates
}

// Attachment describes a file carried by the update.
type Attachment struct {
	FileID string
	Name   string
	Size   int64
	MIME   string
}

// ContactInfo is a shared phone contact.
type ContactInfo struct {
	Phone     string
	FirstName string
	LastName  string
}

// Coordinates is a shared geolocation.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Input is the classified form of a payload.
type Input interface {
	Type() session.InputType
	// Raw is what gets stored as the step's user input.
	Raw() string
}

type Text struct {
	Body string
}

type ButtonPress struct {
	Token string
}

// FileInput is a document or photo.
type FileInput struct {
	Kind   string // "document" or "photo"
	FileID string
	Name   string
	Size   int64
	MIME   string
}

type Contact struct {
	Phone string
	Name  string
}

type Location struct {
	Lat float64
	Lon float64
}

// Unknown is any payload the classifier cannot map.
type Unknown struct{}

const (
	FileDocument = "document"
	FilePhoto    = "photo"
)

func (Text) Type() session.InputType        { return session.InputText }
func (ButtonPress) Type() session.InputType { return session.InputButton }
func (FileInput) Type() session.InputType   { return session.InputFile }
func (Contact) Type() session.InputType     { return session.InputContact }
func (Location) Type() session.InputType    { return session.InputLocation }
func (Unknown) Type() session.InputType     { return session.InputNone }

func (t Text) Raw() string        { return t.Body }
func (b ButtonPress) Raw() string { return b.Token }
func (f FileInput) Raw() string {
	if f.Name != "" {
		return f.Name
	}
	return f.FileID
}
func (c Contact) Raw() string  { return c.Phone }
func (l Location) Raw() string { return l.String() }
func (Unknown) Raw() string    { return "" }

// String renders coordinates as "lat,lon" with six decimals.
func (l Location) String() string {
	return fmt.Sprintf("%s,%s", strconv.FormatFloat(l.Lat, 'f', 6, 64), strconv.FormatFloat(l.Lon, 'f', 6, 64))
}

// Classify picks exactly one input. A callback wins; otherwise the first populated
// field in the order text, document, photo, contact, location.
func Classify(p Payload) Input {
	if p.Callback != "" {
		return ButtonPress{Token: p.Callback}
	}
	switch {
	case strings.TrimSpace(p.Text) != "":
		return Text{Body: p.Text}
	case p.Document != nil && p.Document.FileID != "":
		return fileInput(FileDocument, p.Document)
	case p.Photo != nil && p.Photo.FileID != "":
		return fileInput(FilePhoto, p.Photo)
	case p.Contact != nil && p.Contact.Phone != "":
		name := strings.TrimSpace(p.Contact.FirstName + " " + p.Contact.LastName)
		return Contact{Phone: p.Contact.Phone, Name: name}
	case p.Location != nil:
		return Location{Lat: p.Location.Lat, Lon: p.Location.Lon}
	}
	return Unknown{}
}

func fileInput(kind string, a *Attachment) FileInput {
	return FileInput{Kind: kind, FileID: a.FileID, Name: a.Name, Size: a.Size, MIME: a.MIME}
}

// CommandWord returns the leading slash command of text without a bot mention,
// e.g. "/start@my_bot ref" -> "/start". Non-commands return "".
func CommandWord(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	word := text
	if i := strings.IndexAny(word, " \t\n"); i >= 0 {
		word = word[:i]
	}
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "/" {
		return ""
	}
	return strings.ToLower(word)
}
