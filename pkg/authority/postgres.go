package authority

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore persists assignments in a relational table, one row per
// principal. It works against PostgreSQL in production and an in-memory
// SQLite database in tests; both accept $n parameter placeholders.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store on an existing database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const assignmentColumns = `principal, role, assigned_by, assigned_at, is_active, expires_at, restrictions`

// Read returns the assignment for a principal, or (nil, nil) if absent.
func (s *PostgresStore) Read(ctx context.Context, principal string) (*Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM role_assignments
		WHERE principal = $1
	`

	a, err := scanAssignment(s.db.QueryRowContext(ctx, query, principal))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read assignment: %w", err)
	}
	return a, nil
}

// Write upserts the assignment, replacing any existing row in full.
func (s *PostgresStore) Write(ctx context.Context, assignment Assignment) error {
	restrictionsJSON, err := marshalRestrictions(assignment.Restrictions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO role_assignments (` + assignmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (principal)
		DO UPDATE SET role = EXCLUDED.role,
		              assigned_by = EXCLUDED.assigned_by,
		              assigned_at = EXCLUDED.assigned_at,
		              is_active = EXCLUDED.is_active,
		              expires_at = EXCLUDED.expires_at,
		              restrictions = EXCLUDED.restrictions
	`

	_, err = s.db.ExecContext(ctx, query,
		assignment.Principal,
		string(assignment.Role),
		assignment.AssignedBy,
		assignment.AssignedAt,
		assignment.IsActive,
		assignment.ExpiresAt,
		restrictionsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to write assignment: %w", err)
	}
	return nil
}

// Update merges the patch onto the existing row inside a transaction.
// It returns ErrNotFound when the principal has no assignment, so a
// partial update can never resurrect a deleted row.
func (s *PostgresStore) Update(ctx context.Context, principal string, patch AssignmentPatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin update: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT ` + assignmentColumns + `
		FROM role_assignments
		WHERE principal = $1
	`
	a, err := scanAssignment(tx.QueryRowContext(ctx, query, principal))
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read assignment for update: %w", err)
	}

	applyPatch(a, patch)

	restrictionsJSON, err := marshalRestrictions(a.Restrictions)
	if err != nil {
		return err
	}

	update := `
		UPDATE role_assignments
		SET role = $1, is_active = $2, expires_at = $3, restrictions = $4
		WHERE principal = $5
	`
	if _, err := tx.ExecContext(ctx, update,
		string(a.Role),
		a.IsActive,
		a.ExpiresAt,
		restrictionsJSON,
		principal,
	); err != nil {
		return fmt.Errorf("failed to update assignment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit update: %w", err)
	}
	return nil
}

// Delete removes the row; deleting an absent principal is a no-op.
func (s *PostgresStore) Delete(ctx context.Context, principal string) error {
	query := `DELETE FROM role_assignments WHERE principal = $1`
	if _, err := s.db.ExecContext(ctx, query, principal); err != nil {
		return fmt.Errorf("failed to delete assignment: %w", err)
	}
	return nil
}

// ListAll returns every stored assignment.
func (s *PostgresStore) ListAll(ctx context.Context) ([]Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM role_assignments
		ORDER BY principal ASC
	`
	return s.list(ctx, query)
}

// ListByRole returns every stored assignment for the given role.
func (s *PostgresStore) ListByRole(ctx context.Context, role Role) ([]Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM role_assignments
		WHERE role = $1
		ORDER BY principal ASC
	`
	return s.list(ctx, query, string(role))
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...interface{}) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}

// scanAssignment scans an assignment from a database row.
func scanAssignment(scanner interface {
	Scan(dest ...interface{}) error
}) (*Assignment, error) {
	var a Assignment
	var role string
	var expiresAt sql.NullTime
	var restrictionsJSON sql.NullString

	err := scanner.Scan(
		&a.Principal,
		&role,
		&a.AssignedBy,
		&a.AssignedAt,
		&a.IsActive,
		&expiresAt,
		&restrictionsJSON,
	)
	if err != nil {
		return nil, err
	}

	a.Role = Role(role)
	if expiresAt.Valid {
		t := expiresAt.Time
		a.ExpiresAt = &t
	}
	if restrictionsJSON.Valid && restrictionsJSON.String != "" {
		var r Restrictions
		if err := json.Unmarshal([]byte(restrictionsJSON.String), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal restrictions: %w", err)
		}
		a.Restrictions = &r
	}

	return &a, nil
}

func marshalRestrictions(r *Restrictions) (interface{}, error) {
	if r == nil {
		return nil, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal restrictions: %w", err)
	}
	return string(data), nil
}
