package authority

import (
	"context"

	"github.com/tidemark-dev/authority/pkg/observability"
)

// MigrationError records a per-principal bootstrap failure.
type MigrationError struct {
	Principal string `json:"principal"`
	Error     string `json:"error"`
}

// MigrationReport summarizes a bulk legacy bootstrap run.
type MigrationReport struct {
	Migrated []string         `json:"migrated"`
	Skipped  []string         `json:"skipped"`
	Errors   []MigrationError `json:"errors,omitempty"`
}

// Migrator bulk-bootstraps every principal on the legacy allow-list
// into the role store. Running it is idempotent: principals migrated by
// an earlier run are reported as skipped, never re-written.
type Migrator struct {
	engine *Engine
	legacy *LegacyAdmins
	log    *observability.Logger
	dryRun bool
}

// MigratorOption configures a Migrator.
type MigratorOption func(*Migrator)

// WithMigratorLogger attaches a structured logger to the migrator.
func WithMigratorLogger(log *observability.Logger) MigratorOption {
	return func(m *Migrator) { m.log = log }
}

// WithDryRun reports what would be migrated without writing anything.
func WithDryRun() MigratorOption {
	return func(m *Migrator) { m.dryRun = true }
}

// NewMigrator creates a migrator for the given engine and allow-list.
func NewMigrator(engine *Engine, legacy *LegacyAdmins, opts ...MigratorOption) *Migrator {
	m := &Migrator{
		engine: engine,
		legacy: legacy,
		log:    engine.log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run bootstraps every allow-listed principal. A per-principal failure
// is recorded and the run continues with the remaining principals.
func (m *Migrator) Run(ctx context.Context) *MigrationReport {
	report := &MigrationReport{
		Migrated: []string{},
		Skipped:  []string{},
	}

	for _, principal := range m.legacy.Principals() {
		if m.dryRun {
			existing, err := m.engine.store.Read(ctx, principal)
			switch {
			case err != nil:
				report.Errors = append(report.Errors, MigrationError{Principal: principal, Error: err.Error()})
			case existing != nil:
				report.Skipped = append(report.Skipped, principal)
			default:
				report.Migrated = append(report.Migrated, principal)
			}
			continue
		}

		_, created, err := m.engine.Bootstrap(ctx, principal)
		switch {
		case err != nil:
			m.log.WithError(err).WithPrincipal(principal).Warn("legacy bootstrap failed")
			report.Errors = append(report.Errors, MigrationError{Principal: principal, Error: err.Error()})
		case created:
			m.log.WithPrincipal(principal).Info("legacy principal migrated")
			report.Migrated = append(report.Migrated, principal)
		default:
			report.Skipped = append(report.Skipped, principal)
		}
	}

	return report
}
