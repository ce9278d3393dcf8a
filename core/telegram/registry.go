package telegram

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/graph"
	"github.com/m3rciful/flowbot/core/logger"
)

// Registry maps bot ids to running bot clients.
type Registry struct {
	mu   sync.RWMutex
	bots map[string]*tele.Bot
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{bots: make(map[string]*tele.Bot)}
}

// Register stores bot under id, replacing any previous client.
func (r *Registry) Register(id string, bot *tele.Bot) {
	if r == nil || id == "" || bot == nil {
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.bot.skip",
			slog.String("bot_id", id),
			slog.String("reason", "invalid"),
		)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bots[id]; exists {
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.bot.replace",
			slog.String("bot_id", id),
		)
	}
	r.bots[id] = bot
}

// Remove drops the client registered under id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bots, id)
}

// Bot safely returns the client registered under id.
func (r *Registry) Bot(id string) (*tele.Bot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bots[id]
	return b, ok
}

// IDs returns sorted bot ids (for diagnostics).
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.bots))
	for id := range r.bots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CommandsFromGraph lists the graph's trigger commands for the Telegram command menu.
// Descriptions come from block labels and fall back to the block id.
func CommandsFromGraph(g *graph.Graph) []tele.Command {
	if g == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var list []tele.Command
	for _, b := range g.Triggers() {
		text := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(b.Trigger)), "/")
		if text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		desc := strings.TrimSpace(b.Label)
		if desc == "" {
			desc = b.ID
		}
		list = append(list, tele.Command{Text: text, Description: desc})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// InitBotCommands sets the Telegram bot commands shown in the command menu.
func InitBotCommands(ctx context.Context, botID string, bot *tele.Bot, cmds []tele.Command) {
	if len(cmds) == 0 {
		return
	}
	if err := bot.SetCommands(cmds); err != nil {
		logger.TWire.LogAttrs(ctx, slog.LevelError, "register.commands.set_failed",
			slog.String("bot_id", botID),
			slog.String("err", sanitizeErrorMessage(err)),
		)
		return
	}
	logger.TWire.LogAttrs(ctx, slog.LevelInfo, "register.commands.set",
		slog.String("bot_id", botID),
		slog.Int("count", len(cmds)),
	)
}
