// Package graph holds the typed, immutable view of a bot's block definitions
// and the lookup index used by resolution.
package graph

import (
	"fmt"
	"strings"
	"unicode"
)

// ButtonRef locates a button inside its owning menu block.
type ButtonRef struct {
	Owner  *Block
	Button Button
	Row    int
	Col    int
}

// Graph is an indexed, read-only block graph. Cycles are allowed.
type Graph struct {
	blocks    []*Block
	byID      map[string]*Block
	byToken   map[string]ButtonRef
	byTrigger map[string]*Block
	warnings  []string
}

func newGraph(blocks []*Block) *Graph {
	g := &Graph{
		blocks:    blocks,
		byID:      make(map[string]*Block, len(blocks)),
		byToken:   make(map[string]ButtonRef),
		byTrigger: make(map[string]*Block),
	}
	for _, b := range blocks {
		g.byID[b.ID] = b
	}
	for _, b := range blocks {
		if b.Trigger != "" {
			if _, taken := g.byTrigger[b.Trigger]; !taken {
				g.byTrigger[b.Trigger] = b
			}
		}
		if b.Next != "" {
			if _, ok := g.byID[b.Next]; !ok {
				g.warnings = append(g.warnings, fmt.Sprintf("block %s: next %q not found", b.ID, b.Next))
			}
		}
		menu, ok := b.Action.(SendMenu)
		if !ok {
			continue
		}
		for r, row := range menu.Rows {
			for c, btn := range row {
				if btn.Target != "" {
					if _, ok := g.byID[btn.Target]; !ok {
						g.warnings = append(g.warnings, fmt.Sprintf("block %s: button %q target %q not found", b.ID, btn.Label, btn.Target))
					}
				}
				if btn.Token == "" {
					continue
				}
				// first declaration wins: graph order, then row, then column
				if _, taken := g.byToken[btn.Token]; taken {
					continue
				}
				g.byToken[btn.Token] = ButtonRef{Owner: b, Button: btn, Row: r, Col: c}
			}
		}
	}
	return g
}

// Len returns the number of blocks.
func (g *Graph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.blocks)
}

// Blocks returns blocks in declaration order.
func (g *Graph) Blocks() []*Block {
	if g == nil {
		return nil
	}
	return append([]*Block(nil), g.blocks...)
}

// First returns the first declared block, or nil for an empty graph.
func (g *Graph) First() *Block {
	if g.Len() == 0 {
		return nil
	}
	return g.blocks[0]
}

// ByID looks a block up by id.
func (g *Graph) ByID(id string) (*Block, bool) {
	if g == nil || id == "" {
		return nil, false
	}
	b, ok := g.byID[id]
	return b, ok
}

// ButtonByToken finds the first menu button carrying token.
func (g *Graph) ButtonByToken(token string) (ButtonRef, bool) {
	if g == nil || token == "" {
		return ButtonRef{}, false
	}
	ref, ok := g.byToken[token]
	return ref, ok
}

// ByTrigger returns the block seeded by an entry command.
func (g *Graph) ByTrigger(command string) (*Block, bool) {
	if g == nil || command == "" {
		return nil, false
	}
	b, ok := g.byTrigger[command]
	return b, ok
}

// Triggers lists entry commands in declaration order.
func (g *Graph) Triggers() []*Block {
	if g == nil {
		return nil
	}
	var out []*Block
	for _, b := range g.blocks {
		if b.Trigger != "" && g.byTrigger[b.Trigger] == b {
			out = append(out, b)
		}
	}
	return out
}

// Warnings lists dangling references found while indexing.
func (g *Graph) Warnings() []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.warnings...)
}

// DataKeyFor returns the key an AskQuestion answer is stored under.
func DataKeyFor(b *Block) string {
	if b == nil {
		return ""
	}
	if q, ok := b.Action.(AskQuestion); ok && q.DataKey != "" {
		return q.DataKey
	}
	if s := Slug(b.Label); s != "" {
		return s
	}
	return b.ID
}

// Slug lowercases s and collapses every run of non-alphanumerics into a single underscore.
func Slug(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
