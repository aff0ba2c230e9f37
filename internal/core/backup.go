package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"worksite/internal/infra/persistence/memory"
	"worksite/pkg/domain"
)

// ErrInvalidBackup wraps backup documents that cannot be decoded.
var ErrInvalidBackup = errors.New("core: invalid backup document")

// ExportBackup writes the full data set in the directory document format.
func (s *Service) ExportBackup(ctx context.Context, w io.Writer) error {
	doc := s.document()
	if doc.Projects == nil {
		doc.Projects = []domain.Project{}
	}
	if doc.Users == nil {
		doc.Users = []domain.User{}
	}
	if doc.AuditLogs == nil {
		doc.AuditLogs = []domain.AuditLogEntry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	s.recordAudit(ctx, domain.AuditDataExport, fmt.Sprintf("Exported %d projects", len(doc.Projects)))
	return nil
}

// backupDocument distinguishes absent sections from empty ones.
type backupDocument struct {
	Projects  *[]domain.Project       `json:"projects"`
	Users     *[]domain.User          `json:"users"`
	AuditLogs *[]domain.AuditLogEntry `json:"auditLogs"`
}

// RestoreBackup replaces every section present in the backup. Sections the
// backup omits are left as they are.
func (s *Service) RestoreBackup(ctx context.Context, r io.Reader) error {
	var doc backupDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	current := s.store.ExportState()
	projects, users, audit := current.ProjectList(), current.UserList(), current.AuditLogs
	if doc.Projects != nil {
		projects = make([]domain.Project, 0, len(*doc.Projects))
		for _, p := range *doc.Projects {
			projects = append(projects, domain.Normalize(p))
		}
	}
	if doc.Users != nil {
		users = *doc.Users
	}
	if doc.AuditLogs != nil {
		audit = *doc.AuditLogs
	}
	s.store.ReplaceState(domain.WithOrigin(ctx, domain.OriginRestore), memory.SnapshotFromLists(projects, users, audit))
	s.recordAudit(ctx, domain.AuditSystemRestore, "Restored system data from backup")
	return nil
}
