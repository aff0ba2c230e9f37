package core

import (
	"context"

	"worksite/internal/directory"
	"worksite/internal/reconcile"
	"worksite/pkg/domain"
)

// Connect links a directory, picking one when no handle is held, and
// requests permission. A granted link is reconciled before Connect returns.
func (s *Service) Connect(ctx context.Context) error {
	if err := s.channel.Connect(ctx); err != nil {
		return err
	}
	s.recordAudit(ctx, domain.AuditConnectDirectory, "Connected directory "+s.handleName())
	return nil
}

// ConnectTo links the directory named by locator (a path, s3://bucket/prefix
// or memory:name) and requests permission.
func (s *Service) ConnectTo(ctx context.Context, locator string) error {
	h, err := directory.ParseLocator(locator)
	if err != nil {
		return err
	}
	if err := s.channel.ConnectTo(ctx, h); err != nil {
		return err
	}
	s.recordAudit(ctx, domain.AuditConnectDirectory, "Connected directory "+h.String())
	return nil
}

// RequestPermission asks again for access to the held handle.
func (s *Service) RequestPermission(ctx context.Context) error {
	return s.channel.RequestPermission(ctx)
}

// Disconnect drops the directory link and forgets the handle.
func (s *Service) Disconnect(ctx context.Context) error {
	name := s.handleName()
	s.writer.Flush()
	if err := s.channel.Disconnect(ctx); err != nil {
		return err
	}
	s.recordAudit(ctx, domain.AuditDisconnectDirectory, "Disconnected directory "+name)
	return nil
}

// Sync reconciles with the linked directory on demand.
func (s *Service) Sync(ctx context.Context) (reconcile.Report, error) {
	if s.channel.State().Permission != domain.PermissionGranted {
		return reconcile.Report{}, directory.ErrPermissionDenied
	}
	return s.reconciler.Run(ctx)
}

// SyncState reports the directory link.
func (s *Service) SyncState() domain.SyncState { return s.channel.State() }

// Handle returns the directory handle currently held, if any.
func (s *Service) Handle() (directory.Handle, bool) { return s.channel.Handle() }

func (s *Service) handleName() string {
	if h, ok := s.channel.Handle(); ok {
		return h.String()
	}
	return ""
}
