package database

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/m3rciful/flowbot/core/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	migrationsDir   = "migrations"
	postgresReadyIn = 30 * time.Second
	previewFiles    = 6
)

// migrationFile is one embedded up migration.
type migrationFile struct {
	version uint64
	name    string
}

// embeddedMigrations lists the up migrations ordered by version. Files whose
// name does not start with a version number are ignored.
func embeddedMigrations() []migrationFile {
	entries, err := fs.ReadDir(migrationsFS, migrationsDir)
	if err != nil {
		return nil
	}
	var files []migrationFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, _, _ := strings.Cut(name, "_")
		v, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			continue
		}
		files = append(files, migrationFile{version: v, name: name})
	}
	slices.SortFunc(files, func(a, b migrationFile) int { return int(a.version) - int(b.version) })
	return files
}

// namesBetween returns the files with from < version <= to.
func namesBetween(files []migrationFile, from, to uint64) []string {
	var out []string
	for _, f := range files {
		if f.version > from && f.version <= to {
			out = append(out, f.name)
		}
	}
	return out
}

// RunMigrations brings the schema up to the newest embedded migration. For
// Postgres it first waits for the server to accept connections.
func RunMigrations(cfg Config) error {
	if cfg.DriverName() == DriverPostgres {
		if err := WaitForPostgres(cfg.DSN(), postgresReadyIn); err != nil {
			logger.MIG.Error("db not ready", slog.String("event", "db.migrate.wait"), slog.String("err", err.Error()))
			return fmt.Errorf("database not ready: %w", err)
		}
	}

	m, err := openMigrator(cfg)
	if err != nil {
		logger.MIG.Error("init failed", slog.String("event", "db.migrate.init"), slog.String("err", err.Error()))
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer closeMigrator(m)

	from, _, _ := m.Version()
	start := time.Now()
	upErr := m.Up()
	took := logger.RoundMS(time.Since(start))

	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		logger.MIG.Error("migration failed",
			slog.String("event", "db.migrate.apply"),
			slog.String("err", upErr.Error()),
			slog.Duration("duration", took),
		)
		return fmt.Errorf("migration execution failed: %w", upErr)
	}

	to, _, _ := m.Version()
	applied := namesBetween(embeddedMigrations(), uint64(from), uint64(to))
	if preview, cut := logger.SummarizeStrings(applied, previewFiles); preview != "" {
		logger.MIG.Debug("applied files",
			slog.String("event", "db.migrate.apply"),
			slog.String("files_preview", preview),
			slog.Bool("files_truncated", cut),
		)
	}
	logger.MIG.Info("migrations summary",
		slog.String("event", "db.migrate.summary"),
		slog.String("driver", cfg.DriverName()),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("files", len(applied)),
		slog.Duration("duration", took),
	)
	return nil
}

// MigrationVersion reports the applied schema version and whether it is dirty.
// A database without migrations reports version 0.
func MigrationVersion(cfg Config) (uint, bool, error) {
	m, err := openMigrator(cfg)
	if err != nil {
		return 0, false, err
	}
	defer closeMigrator(m)
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func openMigrator(cfg Config) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	if cfg.DriverName() == DriverSQLite {
		if err := ensureDir(cfg.Path); err != nil {
			return nil, err
		}
	}
	return migrate.NewWithSourceInstance("iofs", src, cfg.MigrateURL())
}

func closeMigrator(m *migrate.Migrate) {
	srcErr, dbErr := m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		logger.MIG.Warn("close failed", slog.String("event", "db.migrate.close"), slog.String("err", err.Error()))
	}
}
