package memory

import (
	"context"
	"errors"

	"worksite/pkg/domain"
)

// Upsert replaces the project with the same id, or appends it. A project
// without an id is rejected with a *domain.ValidationError and nothing changes.
func (s *Store) Upsert(ctx context.Context, p Project) error {
	return s.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpsertProject(p)
		return err
	})
}

// UpsertAll upserts every project in order as a single mutation. Either all
// are applied or, on the first invalid record, none.
func (s *Store) UpsertAll(ctx context.Context, projects []Project) error {
	if len(projects) == 0 {
		return nil
	}
	return s.RunInTransaction(ctx, func(tx Transaction) error {
		for _, p := range projects {
			if _, err := tx.UpsertProject(p); err != nil {
				return err
			}
		}
		return nil
	})
}

// Remove permanently deletes a project. It reports false when no project had
// the id.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	err := s.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteProject(id)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Get retrieves a project by id.
func (s *Store) Get(id string) (Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindProject(id)
}

// List returns every project in canonical order.
func (s *Store) List() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListProjects()
}

// ListByType returns projects of one classification in canonical order.
func (s *Store) ListByType(class domain.Classification) []Project {
	var out []Project
	for _, p := range s.List() {
		if p.Type == class {
			out = append(out, p)
		}
	}
	return out
}

// FindByNaturalKey returns the project matching both name and address.
func (s *Store) FindByNaturalKey(name, address string) (Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindProjectByNaturalKey(name, address)
}

// FindByName returns every project with the given name.
func (s *Store) FindByName(name string) []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindProjectsByName(name)
}

// UpsertUser replaces or adds a user account.
func (s *Store) UpsertUser(ctx context.Context, u User) error {
	return s.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpsertUser(u)
		return err
	})
}

// RemoveUser deletes a user account.
func (s *Store) RemoveUser(ctx context.Context, id string) (bool, error) {
	err := s.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteUser(id)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ListUsers returns users ordered by id.
func (s *Store) ListUsers() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListUsers()
}

// FindUserByEmail locates a user by email.
func (s *Store) FindUserByEmail(email string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindUserByEmail(email)
}

// AppendAudit records an immutable audit entry.
func (s *Store) AppendAudit(ctx context.Context, entry AuditLogEntry) error {
	return s.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.AppendAudit(entry)
	})
}

// ListAudit returns audit entries newest first.
func (s *Store) ListAudit() []AuditLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListAuditLogs()
}
