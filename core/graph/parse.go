package graph

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// BlockDef is the stored/authored form of a block.
type BlockDef struct {
	ID      string        `json:"id" yaml:"id"`
	Label   string        `json:"label,omitempty" yaml:"label,omitempty"`
	Action  string        `json:"action" yaml:"action"`
	Text    string        `json:"text,omitempty" yaml:"text,omitempty"`
	Format  string        `json:"format,omitempty" yaml:"format,omitempty"`
	Buttons [][]ButtonDef `json:"buttons,omitempty" yaml:"buttons,omitempty"`
	DataKey string        `json:"data_key,omitempty" yaml:"data_key,omitempty"`
	File    *FileDef      `json:"file,omitempty" yaml:"file,omitempty"`
	Caption string        `json:"caption,omitempty" yaml:"caption,omitempty"`
	Next    string        `json:"next,omitempty" yaml:"next,omitempty"`
	Trigger string        `json:"trigger,omitempty" yaml:"trigger,omitempty"`
}

// ButtonDef is the stored form of a menu button.
type ButtonDef struct {
	Label  string `json:"label" yaml:"label"`
	Token  string `json:"token,omitempty" yaml:"token,omitempty"`
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
	URL    string `json:"url,omitempty" yaml:"url,omitempty"`
}

// FileDef is the stored form of a file reference.
type FileDef struct {
	ID   string `json:"id,omitempty" yaml:"id,omitempty"`
	URL  string `json:"url,omitempty" yaml:"url,omitempty"`
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	MIME string `json:"mime,omitempty" yaml:"mime,omitempty"`
}

// Parse decodes a JSON array of block definitions and builds the graph.
func Parse(data []byte) (*Graph, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Build(nil)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var defs []BlockDef
	if err := dec.Decode(&defs); err != nil {
		return nil, configErrorf("", "decode blocks: %v", err)
	}
	return Build(defs)
}

// ParseYAML decodes a YAML sequence of block definitions and builds the graph.
func ParseYAML(data []byte) (*Graph, error) {
	defs, err := DecodeYAML(data)
	if err != nil {
		return nil, err
	}
	return Build(defs)
}

// DecodeYAML strictly decodes a YAML sequence of block definitions without validating them.
func DecodeYAML(data []byte) ([]BlockDef, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var defs []BlockDef
	if err := dec.Decode(&defs); err != nil && !errors.Is(err, io.EOF) {
		return nil, configErrorf("", "decode blocks: %v", err)
	}
	return defs, nil
}

// Marshal encodes block definitions into the stored JSON form.
func Marshal(defs []BlockDef) ([]byte, error) {
	if defs == nil {
		defs = []BlockDef{}
	}
	return json.Marshal(defs)
}

// Build validates definitions and returns the indexed graph.
func Build(defs []BlockDef) (*Graph, error) {
	blocks := make([]*Block, 0, len(defs))
	seen := make(map[string]struct{}, len(defs))
	for i, def := range defs {
		id := strings.TrimSpace(def.ID)
		if id == "" {
			return nil, configErrorf("", "block #%d: id is required", i+1)
		}
		if _, dup := seen[id]; dup {
			return nil, configErrorf(id, "duplicate block id")
		}
		seen[id] = struct{}{}

		action, err := buildAction(def)
		if err != nil {
			return nil, configErrorf(id, "%v", err)
		}
		blocks = append(blocks, &Block{
			ID:      id,
			Label:   strings.TrimSpace(def.Label),
			Action:  action,
			Next:    strings.TrimSpace(def.Next),
			Trigger: strings.ToLower(strings.TrimSpace(def.Trigger)),
		})
	}
	return newGraph(blocks), nil
}

func buildAction(def BlockDef) (Action, error) {
	format, err := parseFormat(def.Format)
	if err != nil {
		return nil, err
	}
	switch ActionKind(strings.TrimSpace(def.Action)) {
	case KindSendText:
		if strings.TrimSpace(def.Text) == "" {
			return nil, errors.New("send_text requires text")
		}
		return SendText{Body: def.Text, Format: format}, nil
	case KindSendMenu:
		if strings.TrimSpace(def.Text) == "" {
			return nil, errors.New("send_menu requires text")
		}
		rows, err := buildRows(def.Buttons)
		if err != nil {
			return nil, err
		}
		return SendMenu{Body: def.Text, Format: format, Rows: rows}, nil
	case KindAskQuestion:
		if strings.TrimSpace(def.Text) == "" {
			return nil, errors.New("ask_question requires text")
		}
		return AskQuestion{Body: def.Text, Format: format, DataKey: strings.TrimSpace(def.DataKey)}, nil
	case KindSendFile:
		ref, err := buildFile(def.File)
		if err != nil {
			return nil, err
		}
		return SendFile{File: ref, Caption: def.Caption}, nil
	case KindHandoff:
		return Handoff{Body: def.Text}, nil
	case "":
		return nil, errors.New("action is required")
	default:
		return Unsupported{Name: strings.TrimSpace(def.Action)}, nil
	}
}

// MaxTokenLen is the longest button token in bytes. Tokens travel as Telegram
// callback_data, which is capped at 64 bytes.
const MaxTokenLen = 64

func buildRows(defs [][]ButtonDef) ([][]Button, error) {
	if len(defs) == 0 {
		return nil, errors.New("send_menu requires at least one button row")
	}
	rows := make([][]Button, 0, len(defs))
	for r, row := range defs {
		if len(row) == 0 {
			return nil, fmt.Errorf("button row %d is empty", r+1)
		}
		out := make([]Button, 0, len(row))
		for c, b := range row {
			btn := Button{
				Label:  strings.TrimSpace(b.Label),
				Token:  strings.TrimSpace(b.Token),
				Target: strings.TrimSpace(b.Target),
				URL:    strings.TrimSpace(b.URL),
			}
			if btn.Label == "" {
				return nil, fmt.Errorf("button %d:%d: label is required", r+1, c+1)
			}
			if btn.Token == "" && btn.URL == "" {
				return nil, fmt.Errorf("button %d:%d: token or url is required", r+1, c+1)
			}
			if len(btn.Token) > MaxTokenLen {
				return nil, fmt.Errorf("button %d:%d: token is %d bytes, max %d", r+1, c+1, len(btn.Token), MaxTokenLen)
			}
			out = append(out, btn)
		}
		rows = append(rows, out)
	}
	return rows, nil
}

func buildFile(def *FileDef) (FileRef, error) {
	if def == nil {
		return FileRef{}, errors.New("send_file requires file")
	}
	ref := FileRef{
		ID:   strings.TrimSpace(def.ID),
		URL:  strings.TrimSpace(def.URL),
		Path: strings.TrimSpace(def.Path),
		Name: strings.TrimSpace(def.Name),
		MIME: strings.TrimSpace(def.MIME),
	}
	set := 0
	for _, v := range []string{ref.ID, ref.URL, ref.Path} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return FileRef{}, errors.New("file requires exactly one of id, url or path")
	}
	return ref, nil
}

func parseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatPlain, FormatMarkdown, FormatMarkdownV2, FormatHTML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q; allowed: markdown, markdownv2, html", raw)
	}
}
