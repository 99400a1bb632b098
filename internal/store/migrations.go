package store

import (
	"context"
	"embed"
	"fmt"
	"path"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// migrationLockID serializes migrations across workers starting together.
const migrationLockID = 7_304_112

// RunMigrations applies the embedded SQL files in name order. Each file runs in its own
// transaction and is recorded in schema_migrations, so a file is applied at most once.
// It returns the versions applied by this call.
func (s *Postgres) RunMigrations(ctx context.Context, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     TEXT PRIMARY KEY,
			applied_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var applied []string
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		version := strings.TrimSuffix(e.Name(), ".sql")
		content, err := migrationFiles.ReadFile("migrations/" + e.Name())
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		ran, err := s.applyMigration(ctx, version, strings.TrimSpace(string(content)))
		if err != nil {
			return applied, err
		}
		if ran {
			logger.Info("migration applied", zap.String("version", version))
			applied = append(applied, version)
		} else {
			logger.Debug("migration already applied", zap.String("version", version))
		}
	}
	return applied, nil
}

func (s *Postgres) applyMigration(ctx context.Context, version, sql string) (bool, error) {
	var ran bool
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
			return fmt.Errorf("lock migrations: %w", err)
		}
		var done bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version).Scan(&done); err != nil {
			return fmt.Errorf("check migration %s: %w", version, err)
		}
		if done {
			return nil
		}
		if sql != "" {
			if _, err := tx.Exec(ctx, sql); err != nil {
				return fmt.Errorf("exec migration %s: %w", version, err)
			}
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", version, err)
		}
		ran = true
		return nil
	})
	return ran, err
}
