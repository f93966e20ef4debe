package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

const migrationTable = "schema_migrations"

type migration struct {
	name string
	up   string
}

func loadMigrations(fsys fs.FS, root string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	out := make([]migration, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(fsys, path.Join(root, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		up := ExtractUpMigration(string(content))
		if strings.TrimSpace(up) == "" {
			continue
		}
		out = append(out, migration{name: name, up: up})
	}
	return out, nil
}

// ExtractUpMigration returns the SQL in the -- +migrate Up section.
func ExtractUpMigration(content string) string {
	const upMarker, downMarker = "-- +migrate Up", "-- +migrate Down"
	upIdx := strings.Index(content, upMarker)
	if upIdx == -1 {
		return content
	}
	downIdx := strings.Index(content, downMarker)
	if downIdx == -1 || downIdx < upIdx {
		return content[upIdx+len(upMarker):]
	}
	return content[upIdx+len(upMarker) : downIdx]
}

// MigrateSQLite applies every embedded SQLite migration at most once.
func MigrateSQLite(sqlDB *sqlx.DB) error {
	migrations, err := loadMigrations(sqliteMigrations, "migrations/sqlite")
	if err != nil {
		return err
	}

	if _, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
        name       TEXT PRIMARY KEY,
        applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, m := range migrations {
		var applied bool
		if err := sqlDB.Get(&applied, `SELECT EXISTS (SELECT 1 FROM `+migrationTable+` WHERE name = ?)`, m.name); err != nil {
			return fmt.Errorf("check migration %s: %w", m.name, err)
		}
		if applied {
			continue
		}

		tx, err := sqlDB.Beginx()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec(m.up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec(`INSERT INTO `+migrationTable+` (name) VALUES (?)`, m.name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.name, err)
		}
	}
	return nil
}

// MigratePostgres applies every embedded Postgres migration at most once.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	migrations, err := loadMigrations(postgresMigrations, "migrations/postgres")
	if err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
        name       TEXT PRIMARY KEY,
        applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, m := range migrations {
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `INSERT INTO `+migrationTable+` (name) VALUES ($1) ON CONFLICT DO NOTHING`, m.name)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return nil
			}
			_, err = tx.Exec(ctx, m.up)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
	}
	return nil
}
