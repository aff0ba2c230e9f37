// Package reconcile merges the directory document with the in-memory store
// whenever the directory channel is granted. The merge is a union keyed by id:
// records are added or overwritten by recency but never removed.
package reconcile

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"

	"worksite/internal/logging"
	"worksite/internal/metrics"
	"worksite/pkg/domain"
)

// Directory is the part of the directory channel the reconciler drives.
type Directory interface {
	ReadSnapshot(ctx context.Context) (*domain.Document, error)
	WriteSnapshot(ctx context.Context, doc domain.Document) error
	LastSaved() time.Time
}

// SaveRecorder persists the last-saved timestamp outside the directory.
type SaveRecorder interface {
	SetLastSaved(ctx context.Context, ts time.Time) error
}

// Report summarises one reconciliation.
type Report struct {
	// Initial is set when the directory held no document and the local state
	// was written as its first snapshot.
	Initial     bool
	Added       int
	Kept        int
	Overwritten int
	Skipped     int
	LastSaved   time.Time
}

// Reconciler runs the merge.
type Reconciler struct {
	store    domain.PersistentStore
	dir      Directory
	recorder SaveRecorder
	now      func() time.Time
	log      *zap.Logger
}

// Option customises a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the time source used for lastSaved stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithRecorder mirrors each successful save timestamp to rec.
func WithRecorder(rec SaveRecorder) Option {
	return func(r *Reconciler) { r.recorder = rec }
}

// New builds a Reconciler over store and dir.
func New(store domain.PersistentStore, dir Directory, logger *zap.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		store: store,
		dir:   dir,
		now:   func() time.Time { return time.Now().UTC() },
		log:   logging.Component(logger, "reconcile"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Hook adapts Run to the channel's granted hook signature.
func (r *Reconciler) Hook() func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := r.Run(ctx)
		return err
	}
}

// Run reconciles the directory document with the store and writes the union
// back to the directory.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	doc, err := r.dir.ReadSnapshot(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("read directory snapshot: %w", err)
	}
	if doc == nil {
		return r.writeInitial(ctx)
	}

	fileWins := doc.LastSaved.After(r.dir.LastSaved())
	var report Report
	syncCtx := domain.WithOrigin(ctx, domain.OriginSync)
	err = r.store.RunInTransaction(syncCtx, func(tx domain.Transaction) error {
		view := tx.Snapshot()
		inFile := make(map[string]struct{}, len(doc.Projects))
		for _, fp := range doc.Projects {
			inFile[fp.ID] = struct{}{}
			local, ok := view.FindProject(fp.ID)
			switch {
			case !ok:
				if err := upsertProject(tx, fp); err != nil {
					r.log.Warn("skip invalid directory record", zap.String("id", fp.ID), zap.Error(err))
					report.Skipped++
					continue
				}
				report.Added++
			case fileWins && !reflect.DeepEqual(domain.Normalize(fp), local):
				if err := upsertProject(tx, fp); err != nil {
					r.log.Warn("skip invalid directory record", zap.String("id", fp.ID), zap.Error(err))
					report.Skipped++
					continue
				}
				report.Overwritten++
			default:
				report.Kept++
			}
		}
		for _, p := range view.ListProjects() {
			if _, ok := inFile[p.ID]; !ok {
				report.Kept++
			}
		}
		for _, fu := range doc.Users {
			local, ok := view.FindUser(fu.ID)
			if ok && (!fileWins || local == fu) {
				continue
			}
			if _, err := tx.UpsertUser(fu); err != nil {
				r.log.Warn("skip invalid directory user", zap.String("id", fu.ID), zap.Error(err))
			}
		}
		for _, entry := range doc.AuditLogs {
			if err := tx.AppendAudit(entry); err != nil {
				r.log.Warn("skip invalid audit entry", zap.String("id", entry.ID), zap.Error(err))
			}
		}
		return nil
	})
	if err != nil {
		return Report{}, fmt.Errorf("apply directory snapshot: %w", err)
	}

	merged := r.document()
	if doc.LastSaved.After(merged.LastSaved) {
		merged.LastSaved = doc.LastSaved
	}
	if err := r.dir.WriteSnapshot(ctx, merged); err != nil {
		return report, fmt.Errorf("write reconciled snapshot: %w", err)
	}
	report.LastSaved = merged.LastSaved
	r.recordSave(ctx, merged.LastSaved)
	r.observe(report)
	r.log.Info("directory reconciled",
		zap.Int("added", report.Added),
		zap.Int("kept", report.Kept),
		zap.Int("overwritten", report.Overwritten),
		zap.Bool("file_newer", fileWins))
	return report, nil
}

func (r *Reconciler) writeInitial(ctx context.Context) (Report, error) {
	doc := r.document()
	if err := r.dir.WriteSnapshot(ctx, doc); err != nil {
		return Report{}, fmt.Errorf("write initial snapshot: %w", err)
	}
	r.recordSave(ctx, doc.LastSaved)
	report := Report{Initial: true, Kept: len(doc.Projects), LastSaved: doc.LastSaved}
	r.observe(report)
	r.log.Info("directory seeded with local state", zap.Int("projects", len(doc.Projects)))
	return report, nil
}

func (r *Reconciler) document() domain.Document {
	return domain.Document{
		Projects:  r.store.List(),
		Users:     r.store.ListUsers(),
		AuditLogs: r.store.ListAudit(),
		LastSaved: r.now(),
	}
}

func (r *Reconciler) recordSave(ctx context.Context, ts time.Time) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.SetLastSaved(ctx, ts); err != nil {
		r.log.Warn("record last saved", zap.Error(err))
	}
}

func (r *Reconciler) observe(report Report) {
	metrics.RecordReconcile("added", report.Added)
	metrics.RecordReconcile("kept", report.Kept)
	metrics.RecordReconcile("overwritten", report.Overwritten)
	metrics.RecordReconcile("skipped", report.Skipped)
}

func upsertProject(tx domain.Transaction, p domain.Project) error {
	_, err := tx.UpsertProject(domain.Normalize(p))
	return err
}
