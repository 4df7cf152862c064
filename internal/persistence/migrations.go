package persistence

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const concernsTablePlaceholder = "{{concerns_table}}"

// Execer is the subset of pgxpool.Pool used to apply migrations.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RunMigrations executes the embedded SQL migrations in filename order.
func RunMigrations(ctx context.Context, db Execer, concernsTable string, logger *zap.Logger) error {
	if db == nil {
		logger.Warn("no postgres pool available; skipping migrations")
		return nil
	}

	statements, err := loadMigrations(concernsTable)
	if err != nil {
		return err
	}

	for _, m := range statements {
		logger.Info("applying migration", zap.String("file", m.name))
		if _, err := db.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
	}

	logger.Info("migrations applied", zap.Int("count", len(statements)))
	return nil
}

type migration struct {
	name string
	sql  string
}

func loadMigrations(concernsTable string) ([]migration, error) {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	sort.Strings(names)

	table := pgx.Identifier{concernsTable}.Sanitize()
	out := make([]migration, 0, len(names))
	for _, name := range names {
		content, err := migrationFiles.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		out = append(out, migration{
			name: strings.TrimPrefix(name, "migrations/"),
			sql:  strings.ReplaceAll(string(content), concernsTablePlaceholder, table),
		})
	}
	return out, nil
}
