package core

import (
	"context"
	"fmt"

	"worksite/pkg/domain"
)

// Projects lists projects in canonical order, optionally restricted to one
// classification. An empty class lists everything.
func (s *Service) Projects(class domain.Classification) []domain.Project {
	if class == "" {
		return s.store.List()
	}
	return s.store.ListByType(class)
}

// Project returns one project by id.
func (s *Service) Project(id string) (domain.Project, bool) { return s.store.Get(id) }

// CreateProject stores a new project. A missing id is generated; an id that
// already exists is rejected.
func (s *Service) CreateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	if p.ID == "" {
		p.ID = s.newID()
	}
	p = domain.Normalize(p)
	var created domain.Project
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, exists := tx.Snapshot().FindProject(p.ID); exists {
			return &domain.ValidationError{Entity: domain.EntityProject, ID: p.ID, Field: "id", Message: "already exists"}
		}
		var err error
		if created, err = tx.UpsertProject(p); err != nil {
			return err
		}
		return s.audit(ctx, tx, domain.AuditCreateProject, fmt.Sprintf("Created %s project: %s", created.Type, created.Name))
	})
	return created, err
}

// UpdateProject replaces an existing project wholesale.
func (s *Service) UpdateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	return s.mutate(ctx, p.ID, domain.AuditUpdateProject, func(cur *domain.Project) error {
		*cur = domain.Normalize(p)
		return nil
	})
}

// DeleteProject removes a project permanently.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		p, ok := tx.Snapshot().FindProject(id)
		if !ok {
			return fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
		}
		if err := tx.DeleteProject(id); err != nil {
			return err
		}
		return s.audit(ctx, tx, domain.AuditDeleteProject, "Deleted project: "+p.Name)
	})
}

// DuplicateProject stores a fresh copy of a project.
func (s *Service) DuplicateProject(ctx context.Context, id string) (domain.Project, error) {
	var dup domain.Project
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		src, ok := tx.Snapshot().FindProject(id)
		if !ok {
			return fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
		}
		var err error
		if dup, err = tx.UpsertProject(domain.Duplicate(src, s.newID)); err != nil {
			return err
		}
		return s.audit(ctx, tx, domain.AuditDuplicateProject, fmt.Sprintf("Duplicated project: %s -> %s", src.Name, dup.Name))
	})
	return dup, err
}

// CycleStatus advances a project to the next workflow status.
func (s *Service) CycleStatus(ctx context.Context, id string) (domain.Project, error) {
	return s.mutate(ctx, id, domain.AuditUpdateProject, func(p *domain.Project) error {
		p.Status = domain.NextStatus(p.Status)
		return nil
	})
}

// AddMilestone appends a milestone and recomputes progress.
func (s *Service) AddMilestone(ctx context.Context, projectID string, m domain.Milestone) (domain.Project, error) {
	if m.ID == "" {
		m.ID = s.newID()
	}
	return s.mutate(ctx, projectID, domain.AuditUpdateProject, func(p *domain.Project) error {
		p.Milestones = append(p.Milestones, m)
		p.Progress = domain.RecomputeProgress(p.Milestones)
		return nil
	})
}

// SetMilestoneCompleted toggles one milestone and recomputes progress.
func (s *Service) SetMilestoneCompleted(ctx context.Context, projectID, milestoneID string, completed bool) (domain.Project, error) {
	return s.mutate(ctx, projectID, domain.AuditUpdateProject, func(p *domain.Project) error {
		for i := range p.Milestones {
			if p.Milestones[i].ID == milestoneID {
				p.Milestones[i].Completed = completed
				p.Progress = domain.RecomputeProgress(p.Milestones)
				return nil
			}
		}
		return fmt.Errorf("milestone %s: %w", milestoneID, domain.ErrNotFound)
	})
}

// AddAttachment adds a file to a project unless one with the same name and
// size is already attached. The bool reports whether it was added.
func (s *Service) AddAttachment(ctx context.Context, projectID string, a domain.Attachment) (domain.Project, bool, error) {
	if a.ID == "" {
		a.ID = s.newID()
	}
	added := false
	p, err := s.mutate(ctx, projectID, domain.AuditUpdateProject, func(p *domain.Project) error {
		var n int
		p.Attachments, n = domain.MergeAttachments(p.Attachments, []domain.Attachment{a})
		added = n > 0
		return nil
	})
	return p, added, err
}

// AddDailyReport appends a daily work report.
func (s *Service) AddDailyReport(ctx context.Context, projectID string, r domain.DailyReport) (domain.Project, error) {
	if r.ID == "" {
		r.ID = s.newID()
	}
	if r.Timestamp == 0 {
		r.Timestamp = s.now().UnixMilli()
	}
	if r.Reporter == "" {
		if actor, ok := domain.ActorFromContext(ctx); ok {
			r.Reporter = actor.Name
		}
	}
	return s.mutate(ctx, projectID, domain.AuditUpdateProject, func(p *domain.Project) error {
		p.Reports = append(p.Reports, r)
		return nil
	})
}

// mutate applies fn to a copy of project id and stores the result, with the
// audit entry, in one transaction.
func (s *Service) mutate(ctx context.Context, id, action string, fn func(*domain.Project) error) (domain.Project, error) {
	var updated domain.Project
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		cur, ok := tx.Snapshot().FindProject(id)
		if !ok {
			return fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
		}
		if err := fn(&cur); err != nil {
			return err
		}
		cur.ID = id
		var err error
		if updated, err = tx.UpsertProject(cur); err != nil {
			return err
		}
		return s.audit(ctx, tx, action, "Updated project details: "+updated.Name)
	})
	return updated, err
}
