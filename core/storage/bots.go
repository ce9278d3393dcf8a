package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/flowbot/core/botdef"
)

// Bots stores bot definitions in the bots table.
type Bots struct {
	db  *sqlx.DB
	now func() time.Time
}

var (
	_ botdef.Source = (*Bots)(nil)
	_ botdef.Writer = (*Bots)(nil)
)

// NewBots wraps an open, migrated database.
func NewBots(db *sqlx.DB) *Bots {
	return &Bots{db: db, now: func() time.Time { return time.Now().UTC() }}
}

type botRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Token     string `db:"token"`
	Active    bool   `db:"is_active"`
	Blocks    string `db:"blocks"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r botRow) definition() botdef.Definition {
	return botdef.Definition{
		ID:        r.ID,
		Name:      r.Name,
		Token:     r.Token,
		Active:    r.Active,
		Blocks:    []byte(r.Blocks),
		UpdatedAt: fromMillis(r.UpdatedAt),
	}
}

const botColumns = `id, name, token, is_active, blocks, updated_at`

// Load returns the definition of botID whether or not it is active.
func (b *Bots) Load(ctx context.Context, botID string) (*botdef.Definition, error) {
	var row botRow
	err := b.db.GetContext(ctx, &row, b.db.Rebind(`SELECT `+botColumns+` FROM bots WHERE id = ?`), botID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, botdef.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load bot: %w", err)
	}
	def := row.definition()
	return &def, nil
}

// ListActive returns active definitions ordered by id.
func (b *Bots) ListActive(ctx context.Context) ([]botdef.Definition, error) {
	var rows []botRow
	err := b.db.SelectContext(ctx, &rows, b.db.Rebind(`SELECT `+botColumns+` FROM bots WHERE is_active = ? ORDER BY id`), true)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	out := make([]botdef.Definition, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.definition())
	}
	return out, nil
}

// Upsert inserts def or replaces the stored row with the same id.
func (b *Bots) Upsert(ctx context.Context, def botdef.Definition) error {
	updated := def.UpdatedAt
	if updated.IsZero() {
		updated = b.now()
	}
	blocks := string(def.Blocks)
	if blocks == "" {
		blocks = "[]"
	}
	row := botRow{
		ID:        def.ID,
		Name:      def.Name,
		Token:     def.Token,
		Active:    def.Active,
		Blocks:    blocks,
		UpdatedAt: millis(updated),
	}
	err := retry(ctx, isBusy, func() error {
		_, err := b.db.NamedExecContext(ctx, `INSERT INTO bots (`+botColumns+`)
			VALUES (:id, :name, :token, :is_active, :blocks, :updated_at)
			ON CONFLICT (id) DO UPDATE SET
				name = excluded.name,
				token = excluded.token,
				is_active = excluded.is_active,
				blocks = excluded.blocks,
				updated_at = excluded.updated_at`, row)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert bot: %w", err)
	}
	return nil
}
