package authority

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// SchemaMigrations returns the schema migrations for the authority
// tables.
func SchemaMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create role_assignments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_assignments (
					principal VARCHAR(320) PRIMARY KEY,
					role VARCHAR(64) NOT NULL,
					assigned_by VARCHAR(320) NOT NULL,
					assigned_at TIMESTAMP NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					expires_at TIMESTAMP,
					restrictions JSONB
				);

				CREATE INDEX IF NOT EXISTS idx_role_assignments_role ON role_assignments(role);
				CREATE INDEX IF NOT EXISTS idx_role_assignments_expires_at ON role_assignments(expires_at);
			`,
		},
		{
			Version:     2,
			Description: "Create schema_migrations_authority bookkeeping table",
			SQL: `
				CREATE TABLE IF NOT EXISTS schema_migrations_authority (
					version INTEGER PRIMARY KEY,
					description TEXT NOT NULL,
					applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
	}
}

// RunMigrations applies all pending schema migrations. It is safe to run
// repeatedly; applied versions are recorded and skipped.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	// Bookkeeping table first so the applied-version check below works
	// on a fresh database.
	bookkeeping := SchemaMigrations()[1]
	if _, err := db.ExecContext(ctx, bookkeeping.SQL); err != nil {
		return fmt.Errorf("failed to create migration bookkeeping table: %w", err)
	}

	for _, m := range SchemaMigrations() {
		var applied int
		err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM schema_migrations_authority WHERE version = $1`, m.Version,
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", m.Version, err)
		}
		if applied > 0 {
			continue
		}

		if _, err := db.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO schema_migrations_authority (version, description) VALUES ($1, $2)`,
			m.Version, m.Description,
		); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
	}
	return nil
}
