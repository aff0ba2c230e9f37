package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"worksite/pkg/domain"
)

// ErrEmailRequired rejects a login without an address.
var ErrEmailRequired = &domain.ValidationError{Entity: domain.EntityUser, Field: "email", Message: "email is required"}

var roleNames = map[domain.UserRole]string{
	domain.RoleAdmin:   "Admin User",
	domain.RoleManager: "Project Manager",
	domain.RoleWorker:  "Site Worker",
}

// Login returns the account registered under email, creating it with role
// when it is unknown. The result is suitable for domain.WithActor.
func (s *Service) Login(ctx context.Context, email string, role domain.UserRole) (domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.User{}, ErrEmailRequired
	}
	if role == "" {
		role = domain.RoleWorker
	}
	var user domain.User
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if existing, ok := tx.Snapshot().FindUserByEmail(email); ok {
			user = existing
			return nil
		}
		var err error
		user, err = tx.UpsertUser(domain.User{
			ID:     s.newID(),
			Name:   roleNames[role],
			Email:  email,
			Role:   role,
			Avatar: "https://ui-avatars.com/api/?name=" + url.QueryEscape(string(role)) + "&background=random",
		})
		return err
	})
	return user, err
}

// UpsertUser creates or replaces an account.
func (s *Service) UpsertUser(ctx context.Context, u domain.User) (domain.User, error) {
	if u.ID == "" {
		u.ID = s.newID()
	}
	var stored domain.User
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		if stored, err = tx.UpsertUser(u); err != nil {
			return err
		}
		return s.audit(ctx, tx, domain.AuditUpdateSettings, fmt.Sprintf("Saved user %s (%s)", stored.Name, stored.Role))
	})
	return stored, err
}

// RemoveUser deletes an account. It reports false when none had the id.
func (s *Service) RemoveUser(ctx context.Context, id string) (bool, error) {
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		u, ok := tx.Snapshot().FindUser(id)
		if !ok {
			return domain.ErrNotFound
		}
		if err := tx.DeleteUser(id); err != nil {
			return err
		}
		return s.audit(ctx, tx, domain.AuditUpdateSettings, "Removed user "+u.Name)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Users lists accounts ordered by id.
func (s *Service) Users() []domain.User { return s.store.ListUsers() }

// AuditLog lists audit entries newest first.
func (s *Service) AuditLog() []domain.AuditLogEntry { return s.store.ListAudit() }

// audit appends an entry attributed to the context actor. Without an actor
// nothing is recorded.
func (s *Service) audit(ctx context.Context, tx domain.Transaction, action, details string) error {
	actor, ok := domain.ActorFromContext(ctx)
	if !ok {
		return nil
	}
	return tx.AppendAudit(domain.AuditLogEntry{
		ID:        s.newID(),
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Action:    action,
		Details:   details,
		Timestamp: s.now().UnixMilli(),
	})
}

// recordAudit stores an audit entry in its own transaction.
func (s *Service) recordAudit(ctx context.Context, action, details string) {
	if _, ok := domain.ActorFromContext(ctx); !ok {
		return
	}
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return s.audit(ctx, tx, action, details)
	})
	if err != nil {
		s.log.Warn("append audit entry", zap.String("action", action), zap.Error(err))
	}
}
