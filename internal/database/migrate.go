package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/kozaktomas/faceverify/internal/logging"
)

// Dialect holds the SQL that differs between drivers for migration bookkeeping.
type Dialect struct {
	CreateMigrationsTable string
	InsertMigration       string
}

var (
	PostgresDialect = Dialect{
		CreateMigrationsTable: `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version VARCHAR(255) PRIMARY KEY,
				applied_at TIMESTAMPTZ DEFAULT NOW()
			)`,
		InsertMigration: "INSERT INTO schema_migrations (version) VALUES ($1)",
	}

	MySQLDialect = Dialect{
		CreateMigrationsTable: `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version VARCHAR(255) PRIMARY KEY,
				applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
		InsertMigration: "INSERT INTO schema_migrations (version) VALUES (?)",
	}
)

// Migrate applies the pending *.sql files of migrations in name order. Each
// file runs in its own transaction; statements are separated by ";" at line end.
func Migrate(ctx context.Context, db *sql.DB, migrations fs.FS, dialect Dialect) error {
	applied, err := appliedMigrations(ctx, db, dialect)
	if err != nil {
		return err
	}

	files, err := pendingMigrationFiles(migrations, applied)
	if err != nil {
		return err
	}

	for _, file := range files {
		content, err := fs.ReadFile(migrations, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction for %s: %w", file, err)
		}

		for _, stmt := range SplitStatements(string(content)) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("execute migration %s: %w", file, err)
			}
		}

		if _, err := tx.ExecContext(ctx, dialect.InsertMigration, file); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}

		logging.Info().Str("migration", file).Msg("applied migration")
	}

	return nil
}

func appliedMigrations(ctx context.Context, db *sql.DB, dialect Dialect) (map[string]bool, error) {
	if _, err := db.ExecContext(ctx, dialect.CreateMigrationsTable); err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

func pendingMigrationFiles(migrations fs.FS, applied map[string]bool) ([]string, error) {
	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") && !applied[e.Name()] {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// SplitStatements splits a migration file into statements. A statement ends
// with a ";" at the end of a line; "--" comment lines are dropped.
func SplitStatements(content string) []string {
	var (
		stmts   []string
		current strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			stmts = append(stmts, s)
		}
		current.Reset()
	}

	for line := range strings.Lines(content) {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "--") {
			continue
		}
		if strings.HasSuffix(trimmed, ";") {
			current.WriteString(strings.TrimSuffix(strings.TrimRight(line, " \t\r\n"), ";"))
			flush()
			continue
		}
		current.WriteString(line)
	}
	flush()
	return stmts
}
