package graph

// ActionKind names what a block does when executed.
type ActionKind string

const (
	KindSendText    ActionKind = "send_text"
	KindSendMenu    ActionKind = "send_menu"
	KindAskQuestion ActionKind = "ask_question"
	KindSendFile    ActionKind = "send_file"
	KindHandoff     ActionKind = "handoff"
)

// Format selects how a text body is rendered by the transport.
type Format string

const (
	FormatPlain      Format = ""
	FormatMarkdown   Format = "markdown"
	FormatMarkdownV2 Format = "markdownv2"
	FormatHTML       Format = "html"
)

// Block is one node of a bot's conversation graph.
type Block struct {
	ID      string
	Label   string
	Action  Action
	Next    string // auto-advance target, empty when the block waits for input
	Trigger string // entry command that seeds a fresh session, e.g. "/start"
}

// Kind reports the block's action kind.
func (b *Block) Kind() ActionKind {
	if b == nil || b.Action == nil {
		return ""
	}
	return b.Action.Kind()
}

// IsMenu reports whether the block renders buttons.
func (b *Block) IsMenu() bool {
	if b == nil {
		return false
	}
	_, ok := b.Action.(SendMenu)
	return ok
}

// Action is the typed payload of a block. The concrete types below form a closed set;
// Unsupported carries kinds the engine does not execute.
type Action interface {
	Kind() ActionKind
}

type SendText struct {
	Body   string
	Format Format
}

type SendMenu struct {
	Body   string
	Format Format
	Rows   [][]Button
}

type AskQuestion struct {
	Body    string
	Format  Format
	DataKey string
}

type SendFile struct {
	File    FileRef
	Caption string
}

type Handoff struct {
	Body string
}

// Unsupported keeps a block whose kind was declared but is not implemented.
type Unsupported struct {
	Name string
}

func (SendText) Kind() ActionKind    { return KindSendText }
func (SendMenu) Kind() ActionKind    { return KindSendMenu }
func (AskQuestion) Kind() ActionKind { return KindAskQuestion }
func (SendFile) Kind() ActionKind    { return KindSendFile }
func (Handoff) Kind() ActionKind     { return KindHandoff }
func (u Unsupported) Kind() ActionKind {
	return ActionKind(u.Name)
}

// Button is a single menu entry. Either Token or URL is set; Target is optional.
type Button struct {
	Label  string
	Token  string
	Target string
	URL    string
}

// FileRef points at a file to send. Exactly one of ID, URL or Path is set.
type FileRef struct {
	ID   string // transport-side file identifier
	URL  string
	Path string
	Name string
	MIME string
}
