package engine

import (
	"github.com/m3rciful/flowbot/core/event"
	"github.com/m3rciful/flowbot/core/graph"
	"github.com/m3rciful/flowbot/core/session"
)

// Tier reports which rule resolved a button press.
type Tier int

const (
	TierDirectID Tier = iota + 1
	TierButtonTarget
	TierOwnerNext
	TierOwnerSelf
)

func (t Tier) String() string {
	switch t {
	case TierDirectID:
		return "direct_id"
	case TierButtonTarget:
		return "button_target"
	case TierOwnerNext:
		return "owner_next"
	case TierOwnerSelf:
		return "owner_self"
	}
	return "none"
}

// Resolution is the outcome of ResolveButton.
type Resolution struct {
	Block *graph.Block
	Tier  Tier
	// Owner is the menu block holding the pressed button; nil for TierDirectID.
	Owner *graph.Block
}

// ActiveBlock returns the block the session is positioned at: the current block when
// it still exists, the trigger block on a first turn whose text is a matching command,
// otherwise the first block. It returns nil only for an empty graph.
func ActiveBlock(g *graph.Graph, sess *session.Session, in event.Input) *graph.Block {
	if sess != nil && sess.CurrentBlockID != "" {
		if b, ok := g.ByID(sess.CurrentBlockID); ok {
			return b
		}
	}
	if sess == nil || sess.CurrentBlockID == "" {
		if txt, ok := in.(event.Text); ok {
			if b, ok := g.ByTrigger(event.CommandWord(txt.Body)); ok {
				return b
			}
		}
	}
	return g.First()
}

// ResolveButton maps a pressed token to its target block. A token equal to a block id
// wins outright; otherwise the first button carrying the token decides, using its
// explicit target, then its menu's next block, then the menu itself.
func ResolveButton(g *graph.Graph, token string) (Resolution, error) {
	if b, ok := g.ByID(token); ok {
		return Resolution{Block: b, Tier: TierDirectID}, nil
	}
	ref, ok := g.ButtonByToken(token)
	if !ok {
		return Resolution{}, &ResolutionError{Token: token}
	}
	if ref.Button.Target != "" {
		if b, ok := g.ByID(ref.Button.Target); ok {
			return Resolution{Block: b, Tier: TierButtonTarget, Owner: ref.Owner}, nil
		}
	}
	if ref.Owner.Next != "" {
		if b, ok := g.ByID(ref.Owner.Next); ok {
			return Resolution{Block: b, Tier: TierOwnerNext, Owner: ref.Owner}, nil
		}
	}
	return Resolution{Block: ref.Owner, Tier: TierOwnerSelf, Owner: ref.Owner}, nil
}

// nextOf returns the auto-advance successor of b, if it resolves.
func nextOf(g *graph.Graph, b *graph.Block) *graph.Block {
	if b == nil || b.Next == "" {
		return nil
	}
	next, ok := g.ByID(b.Next)
	if !ok {
		return nil
	}
	return next
}
