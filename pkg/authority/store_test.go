package authority

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

// storeContract exercises the Store semantics shared by every backend.
func storeContract(t *testing.T, store Store) {
	ctx := context.Background()
	assignedAt := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	t.Run("read absent principal", func(t *testing.T) {
		a, err := store.Read(ctx, "ghost@x.org")
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if a != nil {
			t.Fatalf("Expected nil for absent principal, got %+v", a)
		}
	})

	t.Run("write and read back", func(t *testing.T) {
		expiry := assignedAt.Add(24 * time.Hour)
		in := Assignment{
			Principal:  "a@x.org",
			Role:       RoleEditor,
			AssignedBy: "seed",
			AssignedAt: assignedAt,
			IsActive:   true,
			ExpiresAt:  &expiry,
			Restrictions: &Restrictions{
				IPAllowlist: []string{"10.0.0.0/8"},
			},
		}
		if err := store.Write(ctx, in); err != nil {
			t.Fatalf("Write failed: %v", err)
		}

		got, err := store.Read(ctx, "a@x.org")
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if got == nil {
			t.Fatal("Expected assignment")
		}
		if got.Role != RoleEditor || got.AssignedBy != "seed" || !got.IsActive {
			t.Fatalf("Round-trip mismatch: %+v", got)
		}
		if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expiry) {
			t.Fatalf("Expected expiry %v, got %v", expiry, got.ExpiresAt)
		}
		if got.Restrictions == nil || len(got.Restrictions.IPAllowlist) != 1 {
			t.Fatalf("Expected restrictions to round-trip, got %+v", got.Restrictions)
		}
	})

	t.Run("write replaces in full", func(t *testing.T) {
		replacement := Assignment{
			Principal:  "a@x.org",
			Role:       RoleReadonly,
			AssignedBy: "admin@x.org",
			AssignedAt: assignedAt.Add(time.Hour),
			IsActive:   true,
		}
		if err := store.Write(ctx, replacement); err != nil {
			t.Fatalf("Write failed: %v", err)
		}

		got, err := store.Read(ctx, "a@x.org")
		if err != nil || got == nil {
			t.Fatalf("Read failed: %v, %v", got, err)
		}
		if got.Role != RoleReadonly {
			t.Fatalf("Expected replaced role, got %s", got.Role)
		}
		if got.ExpiresAt != nil || got.Restrictions != nil {
			t.Fatal("Expected full replace to drop expiry and restrictions")
		}
	})

	t.Run("update merges fields", func(t *testing.T) {
		role := RoleContentManager
		inactive := false
		if err := store.Update(ctx, "a@x.org", AssignmentPatch{Role: &role, IsActive: &inactive}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		got, _ := store.Read(ctx, "a@x.org")
		if got.Role != RoleContentManager || got.IsActive {
			t.Fatalf("Expected merged patch, got %+v", got)
		}
		// Untouched fields survive.
		if got.AssignedBy != "admin@x.org" {
			t.Fatalf("Expected assigned_by to survive patch, got %q", got.AssignedBy)
		}
	})

	t.Run("update clears expiry", func(t *testing.T) {
		expiry := assignedAt.Add(time.Hour)
		if err := store.Update(ctx, "a@x.org", AssignmentPatch{ExpiresAt: &expiry}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if got, _ := store.Read(ctx, "a@x.org"); got.ExpiresAt == nil {
			t.Fatal("Expected expiry to be set")
		}

		if err := store.Update(ctx, "a@x.org", AssignmentPatch{ClearExpiresAt: true}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if got, _ := store.Read(ctx, "a@x.org"); got.ExpiresAt != nil {
			t.Fatal("Expected ClearExpiresAt to remove expiry")
		}
	})

	t.Run("update absent principal", func(t *testing.T) {
		active := true
		err := store.Update(ctx, "ghost@x.org", AssignmentPatch{IsActive: &active})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("list", func(t *testing.T) {
		second := Assignment{
			Principal:  "b@x.org",
			Role:       RoleReadonly,
			AssignedBy: "seed",
			AssignedAt: assignedAt,
			IsActive:   true,
		}
		if err := store.Write(ctx, second); err != nil {
			t.Fatalf("Write failed: %v", err)
		}

		all, err := store.ListAll(ctx)
		if err != nil {
			t.Fatalf("ListAll failed: %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("Expected 2 assignments, got %d", len(all))
		}

		readonly, err := store.ListByRole(ctx, RoleReadonly)
		if err != nil {
			t.Fatalf("ListByRole failed: %v", err)
		}
		if len(readonly) != 1 || readonly[0].Principal != "b@x.org" {
			t.Fatalf("Expected only b@x.org for READONLY, got %+v", readonly)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		if err := store.Delete(ctx, "a@x.org"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if a, _ := store.Read(ctx, "a@x.org"); a != nil {
			t.Fatal("Expected assignment gone after delete")
		}
		if err := store.Delete(ctx, "a@x.org"); err != nil {
			t.Fatalf("Expected repeated delete to succeed, got %v", err)
		}
	})

	t.Run("update cannot resurrect deleted principal", func(t *testing.T) {
		role := RoleEditor
		err := store.Update(ctx, "a@x.org", AssignmentPatch{Role: &role})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("Expected ErrNotFound after delete, got %v", err)
		}
	})
}

func TestMemoryStoreContract(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestPostgresStoreContract(t *testing.T) {
	db := setupTestDB(t)
	storeContract(t, NewPostgresStore(db))
}

// Runs the same contract against a real Postgres instance when
// TEST_POSTGRES_PRIMARY points at one; skips otherwise.
func TestPostgresStoreContractLiveDatabase(t *testing.T) {
	db := RequireDatabase(t)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := RunMigrations(ctx, db); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}

	// The contract assumes an empty table.
	if _, err := db.ExecContext(ctx, "DELETE FROM role_assignments"); err != nil {
		t.Fatalf("Clearing assignments failed: %v", err)
	}
	t.Cleanup(func() {
		db.Exec("DELETE FROM role_assignments")
	})

	storeContract(t, NewPostgresStore(db))
}

func TestPostgresStoreReadFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock failed: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection refused"))

	store := NewPostgresStore(db)
	_, err = store.Read(context.Background(), "a@x.org")
	if err == nil {
		t.Fatal("Expected read failure to propagate")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestPostgresStoreWriteFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock failed: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO role_assignments").WillReturnError(errors.New("disk full"))

	store := NewPostgresStore(db)
	werr := store.Write(context.Background(), Assignment{
		Principal:  "a@x.org",
		Role:       RoleEditor,
		AssignedBy: "seed",
		AssignedAt: time.Now(),
		IsActive:   true,
	})
	if werr == nil {
		t.Fatal("Expected write failure to propagate")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestPostgresStoreUpdateRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock failed: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"principal", "role", "assigned_by", "assigned_at", "is_active", "expires_at", "restrictions",
	}).AddRow("a@x.org", "EDITOR", "seed", time.Now(), true, nil, nil)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT").WillReturnRows(rows)
	mock.ExpectExec("UPDATE role_assignments").WillReturnError(errors.New("write conflict"))
	mock.ExpectRollback()

	store := NewPostgresStore(db)
	role := RoleAdmin
	if err := store.Update(context.Background(), "a@x.org", AssignmentPatch{Role: &role}); err == nil {
		t.Fatal("Expected update failure to propagate")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}
