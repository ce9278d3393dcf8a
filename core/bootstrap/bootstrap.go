package bootstrap

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/flowbot/core/config"
	coredatabase "github.com/m3rciful/flowbot/core/database"
	"github.com/m3rciful/flowbot/core/logger"
	"github.com/m3rciful/flowbot/core/valkey"
)

// Options control the bootstrap pipeline.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config
	Valkey   valkey.Config

	// SkipDatabase runs without a database (in-memory sessions, file definitions).
	SkipDatabase bool
	Modules      Modules

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
	ConnectKV  func(context.Context, valkey.Config) (*valkey.Client, error)
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB     *sqlx.DB
	Valkey *valkey.Client
}

// Close releases everything Run opened.
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	if r.Valkey != nil {
		r.Valkey.Close()
	}
	if r.DB != nil {
		return r.DB.Close()
	}
	return nil
}

// Run initializes the logger, migrates and connects to the database, runs the
// seeders and connects to valkey when configured.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	res := &Result{}
	if !opts.SkipDatabase {
		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.RunMigrations
		}
		if err := migrate(opts.Database); err != nil {
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}

		connect := opts.Connect
		if connect == nil {
			connect = coredatabase.Connect
		}
		db, err := connect(opts.Database)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}
		res.DB = db

		for _, s := range opts.Modules.Seeders {
			if err := s.Seed(ctx, db); err != nil {
				_ = res.Close()
				return nil, fmt.Errorf("bootstrap: seeding failed: %w", err)
			}
		}
	}

	if opts.Valkey.Enabled() {
		connectKV := opts.ConnectKV
		if connectKV == nil {
			connectKV = valkey.NewClient
		}
		kv, err := connectKV(ctx, opts.Valkey)
		if err != nil {
			_ = res.Close()
			return nil, fmt.Errorf("bootstrap: valkey initialization failed: %w", err)
		}
		res.Valkey = kv
	}

	return res, nil
}
