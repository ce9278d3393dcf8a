// Package session owns the per-user conversation lifecycle: the session
// record, its step log, collected answers and received files.
package session

import "time"

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
	StatusHandoff   Status = "handoff"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// InputType records what triggered a step.
type InputType string

const (
	InputText     InputType = "text"
	InputButton   InputType = "button"
	InputFile     InputType = "file"
	InputContact  InputType = "contact"
	InputLocation InputType = "location"
	InputNone     InputType = "none"
)

// Key identifies the (bot, user) pair a session belongs to.
type Key struct {
	BotID  string
	UserID string
}

func (k Key) String() string { return k.BotID + "|" + k.UserID }

// Profile holds transport-side user fields refreshed on every event.
type Profile struct {
	Username  string
	FirstName string
	LastName  string
	Language  string
}

// Merge overwrites fields of p with the non-empty fields of next.
func (p Profile) Merge(next Profile) Profile {
	if next.Username != "" {
		p.Username = next.Username
	}
	if next.FirstName != "" {
		p.FirstName = next.FirstName
	}
	if next.LastName != "" {
		p.LastName = next.LastName
	}
	if next.Language != "" {
		p.Language = next.Language
	}
	return p
}

// Session is one user's position in one bot's conversation.
type Session struct {
	ID             string
	BotID          string
	UserID         string
	Profile        Profile
	CurrentBlockID string // empty until the first block executes
	Status         Status
	StartedAt      time.Time
	LastActivityAt time.Time
	CompletedAt    *time.Time
}

// Key returns the session's (bot, user) pair.
func (s *Session) Key() Key { return Key{BotID: s.BotID, UserID: s.UserID} }

// Step is an append-only record of one block execution.
type Step struct {
	ID          string
	SessionID   string
	BlockID     string
	BlockLabel  string
	ActionKind  string
	InputType   InputType
	UserInput   string
	Summary     *string // nil when the transport did not answer
	ResponseRaw []byte
	Order       int
	CreatedAt   time.Time
}

// Answer is one collected key/value pair; (SessionID, Key) is unique.
type Answer struct {
	SessionID     string
	Key           string
	Value         string
	SourceBlockID string
	CollectedAt   time.Time
}

// File is a file the user sent, linked to the step that recorded it.
type File struct {
	ID        string
	SessionID string
	StepID    string
	FileID    string // transport file identifier
	Kind      string // document, photo
	Name      string
	MIME      string
	Size      int64
	LocalPath string
	CreatedAt time.Time
}
