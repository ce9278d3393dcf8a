// Package botdef describes bot definitions (metadata plus block graph) and the
// read-only sources the engine loads them from.
package botdef

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no bot with the requested id exists.
var ErrNotFound = errors.New("botdef: bot not found")

// Definition is one bot: its Telegram token, active flag and JSON-encoded block list.
type Definition struct {
	ID        string
	Name      string
	Token     string
	Active    bool
	Blocks    []byte
	UpdatedAt time.Time
}

// Loader reads one definition; the engine never writes through it.
type Loader interface {
	Load(ctx context.Context, botID string) (*Definition, error)
}

// Lister enumerates active definitions for the runtime.
type Lister interface {
	ListActive(ctx context.Context) ([]Definition, error)
}

// Writer persists definitions; used by seeding and the import command.
type Writer interface {
	Upsert(ctx context.Context, def Definition) error
}

// Source is a definition store that can both load and enumerate.
type Source interface {
	Loader
	Lister
}
