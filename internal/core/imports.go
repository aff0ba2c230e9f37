package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"worksite/internal/cache"
	"worksite/internal/importer"
	"worksite/pkg/domain"
)

// ImportDateLayout formats last_import_date.
const ImportDateLayout = "01/02/2006"

// ErrNoImportSource is returned by Import when neither a locator nor a
// stored import URL is available.
var ErrNoImportSource = errors.New("core: no import source configured")

// Import fetches the workbook at locator, or at the stored import URL when
// locator is empty, and merges it into the store.
func (s *Service) Import(ctx context.Context, locator string) (importer.Summary, error) {
	if strings.TrimSpace(locator) == "" {
		locator = s.ImportURL()
	}
	if strings.TrimSpace(locator) == "" {
		return importer.Summary{}, ErrNoImportSource
	}
	rc, err := s.fetcher.Fetch(ctx, locator)
	if err != nil {
		return importer.Summary{}, err
	}
	defer func() { _ = rc.Close() }()
	return s.ImportWorkbook(ctx, rc)
}

// ImportWorkbook merges an xlsx stream into the store.
func (s *Service) ImportWorkbook(ctx context.Context, r io.Reader) (importer.Summary, error) {
	summary, err := s.importer.RunReader(ctx, r, s.store)
	if err != nil {
		return summary, err
	}
	date := s.now().Format(ImportDateLayout)
	s.mu.Lock()
	s.lastImportDate = date
	s.mu.Unlock()
	s.cacheMu.Lock()
	if err := s.cache.SetLastImportDate(ctx, date); err != nil {
		s.log.Warn("record last import date", zap.Error(err))
	}
	s.cacheMu.Unlock()
	return summary, nil
}

// auditImport is the pipeline's commit hook: the audit entry lands in the
// same transaction as the imported projects.
func (s *Service) auditImport(ctx context.Context, tx domain.Transaction, merged importer.MergeResult) error {
	return s.audit(ctx, tx, domain.AuditImportExcel,
		fmt.Sprintf("Imported %d projects with %d photos", merged.Added, merged.Photos))
}

// LastImportDate returns the MM/DD/YYYY date of the last successful import.
func (s *Service) LastImportDate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastImportDate
}

// ImportURL returns the stored import source locator.
func (s *Service) ImportURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.importURL
}

// SetImportURL stores the default import source locator.
func (s *Service) SetImportURL(ctx context.Context, url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return cache.ErrEmptyImportURL
	}
	s.cacheMu.Lock()
	if err := s.cache.SetImportURL(ctx, url); err != nil {
		s.log.Warn("store import url", zap.Error(err))
	}
	s.cacheMu.Unlock()
	s.mu.Lock()
	s.importURL = url
	s.mu.Unlock()
	s.recordAudit(ctx, domain.AuditUpdateSettings, "Set import source: "+url)
	return nil
}

// WatchImport re-imports path each time it changes until ctx is done.
func (s *Service) WatchImport(ctx context.Context, path string) error {
	w, err := importer.NewSourceWatcher(path, s.debounce, func(ctx context.Context) error {
		summary, err := s.Import(ctx, path)
		if err != nil {
			return err
		}
		s.log.Info("source changed, re-imported",
			zap.String("path", path),
			zap.Int("added", summary.Added),
			zap.Int("updated", summary.Updated))
		return nil
	}, s.log)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}
