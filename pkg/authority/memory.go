package authority

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store. It backs tests and single-process
// deployments that do not need durable assignments.
type MemoryStore struct {
	mu          sync.RWMutex
	assignments map[string]Assignment
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{assignments: make(map[string]Assignment)}
}

// Read returns the assignment for a principal, or (nil, nil) if absent.
func (s *MemoryStore) Read(ctx context.Context, principal string) (*Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assignments[principal]
	if !ok {
		return nil, nil
	}
	out := a
	return &out, nil
}

// Write upserts the assignment, replacing any existing document.
func (s *MemoryStore) Write(ctx context.Context, assignment Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.assignments[assignment.Principal] = assignment
	return nil
}

// Update merges the patch onto the existing assignment.
func (s *MemoryStore) Update(ctx context.Context, principal string, patch AssignmentPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assignments[principal]
	if !ok {
		return ErrNotFound
	}
	applyPatch(&a, patch)
	s.assignments[principal] = a
	return nil
}

// Delete removes the assignment; deleting an absent principal is a no-op.
func (s *MemoryStore) Delete(ctx context.Context, principal string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.assignments, principal)
	return nil
}

// ListAll returns every stored assignment.
func (s *MemoryStore) ListAll(ctx context.Context) ([]Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Assignment, 0, len(s.assignments))
	for _, a := range s.assignments {
		out = append(out, a)
	}
	return out, nil
}

// ListByRole returns every stored assignment for the given role.
func (s *MemoryStore) ListByRole(ctx context.Context, role Role) ([]Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Assignment
	for _, a := range s.assignments {
		if a.Role == role {
			out = append(out, a)
		}
	}
	return out, nil
}
