package authority

import (
	"context"
	"errors"
	"testing"
)

func TestMigratorRun(t *testing.T) {
	ctx := context.Background()
	legacy := NewLegacyAdmins("a@x.org", "b@x.org", "c@x.org")
	engine, store, _ := newTestEngine(t, WithLegacyAdmins(legacy))

	// b@x.org already has an explicit assignment and must be skipped.
	if _, err := engine.AssignRole(ctx, "b@x.org", RoleReadonly, "seed"); err != nil {
		t.Fatalf("seeding failed: %v", err)
	}

	report := NewMigrator(engine, legacy).Run(ctx)

	if len(report.Migrated) != 2 {
		t.Fatalf("Expected 2 migrated, got %v", report.Migrated)
	}
	if len(report.Skipped) != 1 || report.Skipped[0] != "b@x.org" {
		t.Fatalf("Expected b@x.org skipped, got %v", report.Skipped)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("Expected no errors, got %v", report.Errors)
	}

	// Migrated rows carry the migration actor; the seeded one keeps its
	// original role.
	for _, p := range []string{"a@x.org", "c@x.org"} {
		row, err := store.Read(ctx, p)
		if err != nil || row == nil {
			t.Fatalf("Expected persisted row for %s, got %v, %v", p, row, err)
		}
		if row.AssignedBy != SystemMigrationActor || row.Role != RoleSuperAdmin {
			t.Fatalf("Unexpected migrated row for %s: %+v", p, row)
		}
	}
	if row, _ := store.Read(ctx, "b@x.org"); row.Role != RoleReadonly {
		t.Fatalf("Expected seeded assignment untouched, got %+v", row)
	}
}

func TestMigratorIsIdempotent(t *testing.T) {
	ctx := context.Background()
	legacy := NewLegacyAdmins("a@x.org", "b@x.org")
	engine, _, _ := newTestEngine(t, WithLegacyAdmins(legacy))

	migrator := NewMigrator(engine, legacy)

	first := migrator.Run(ctx)
	if len(first.Migrated) != 2 || len(first.Skipped) != 0 {
		t.Fatalf("Unexpected first run: %+v", first)
	}

	second := migrator.Run(ctx)
	if len(second.Migrated) != 0 {
		t.Fatalf("Expected empty migrated list on rerun, got %v", second.Migrated)
	}
	if len(second.Skipped) != 2 {
		t.Fatalf("Expected everyone skipped on rerun, got %v", second.Skipped)
	}
}

func TestMigratorToleratesPartialFailure(t *testing.T) {
	ctx := context.Background()
	legacy := NewLegacyAdmins("a@x.org", "b@x.org", "c@x.org")

	inner := NewMemoryStore()
	store := &selectiveFailStore{Store: inner, failOn: "b@x.org"}
	clock := newTestClock(testStart)
	engine := NewEngine(store, WithClock(clock.Now), WithLegacyAdmins(legacy))

	report := NewMigrator(engine, legacy).Run(ctx)

	if len(report.Migrated) != 2 {
		t.Fatalf("Expected the other principals migrated, got %v", report.Migrated)
	}
	if len(report.Errors) != 1 || report.Errors[0].Principal != "b@x.org" {
		t.Fatalf("Expected one error for b@x.org, got %v", report.Errors)
	}
}

func TestMigratorDryRun(t *testing.T) {
	ctx := context.Background()
	legacy := NewLegacyAdmins("a@x.org", "b@x.org")
	engine, store, _ := newTestEngine(t, WithLegacyAdmins(legacy))

	if _, err := engine.AssignRole(ctx, "b@x.org", RoleReadonly, "seed"); err != nil {
		t.Fatalf("seeding failed: %v", err)
	}

	report := NewMigrator(engine, legacy, WithDryRun()).Run(ctx)

	if len(report.Migrated) != 1 || report.Migrated[0] != "a@x.org" {
		t.Fatalf("Expected a@x.org reported as would-migrate, got %v", report.Migrated)
	}
	if len(report.Skipped) != 1 {
		t.Fatalf("Expected b@x.org skipped, got %v", report.Skipped)
	}

	// Nothing was written.
	if row, _ := store.Read(ctx, "a@x.org"); row != nil {
		t.Fatalf("Expected dry run to write nothing, got %+v", row)
	}
}

// selectiveFailStore fails writes for a single principal.
type selectiveFailStore struct {
	Store
	failOn string
}

func (s *selectiveFailStore) Write(ctx context.Context, assignment Assignment) error {
	if assignment.Principal == s.failOn {
		return errors.New("write rejected")
	}
	return s.Store.Write(ctx, assignment)
}
