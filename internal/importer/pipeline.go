// Package importer ingests the externally produced schedule spreadsheet:
// header detection, column mapping, cell coercion, classification, picture
// association and a natural-key upsert into the entity store.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"worksite/internal/logging"
	"worksite/internal/metrics"
	"worksite/pkg/domain"
)

// Summary reports the outcome of one import.
type Summary struct {
	Added             int                  `json:"added"`
	Updated           int                  `json:"updated"`
	Unchanged         int                  `json:"unchanged"`
	SkippedDuplicates int                  `json:"skippedDuplicates"`
	SkippedInvalid    int                  `json:"skippedInvalid"`
	SkippedImages     int                  `json:"skippedImages"`
	Photos            int                  `json:"photos"`
	Warnings          []RowCoercionWarning `json:"-"`
}

// Options tunes a Pipeline.
type Options struct {
	HeaderScanRows int
	MaxImageBytes  int64
	NewID          func() string
	Now            func() time.Time
	Logger         *zap.Logger
	// Commit runs inside the import transaction after the upserts, only
	// when the import added or updated a project.
	Commit func(ctx context.Context, tx domain.Transaction, merged MergeResult) error
}

// errNoChanges rolls back an import that would write nothing.
var errNoChanges = errors.New("importer: no changes")

// Pipeline runs the import stages against a store.
type Pipeline struct {
	opts Options
	log  *zap.Logger
}

// NewPipeline returns a Pipeline with defaults filled in.
func NewPipeline(opts Options) *Pipeline {
	if opts.HeaderScanRows <= 0 {
		opts.HeaderScanRows = DefaultHeaderScanRows
	}
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = DefaultMaxImageBytes
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{opts: opts, log: logging.Component(opts.Logger, "importer")}
}

// RunReader decodes a workbook and imports it.
func (p *Pipeline) RunReader(ctx context.Context, r io.Reader, store domain.PersistentStore) (Summary, error) {
	sheet, err := ReadWorkbook(r)
	if err != nil {
		metrics.ImportRuns.WithLabelValues(metrics.ResultError).Inc()
		return Summary{}, err
	}
	return p.Run(ctx, sheet, store)
}

// Run imports sheet into store as a single mutation tagged OriginImport.
// Header or column failures leave the store untouched.
func (p *Pipeline) Run(ctx context.Context, sheet *Sheet, store domain.PersistentStore) (Summary, error) {
	start := p.opts.Now()
	summary, err := p.run(ctx, sheet, store)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ImportRuns.WithLabelValues(result).Inc()
	metrics.ImportDuration.Observe(p.opts.Now().Sub(start).Seconds())
	return summary, err
}

func (p *Pipeline) run(ctx context.Context, sheet *Sheet, store domain.PersistentStore) (Summary, error) {
	header, err := DetectHeader(sheet.Rows, p.opts.HeaderScanRows)
	if err != nil {
		return Summary{}, err
	}
	cols, err := MapColumns(sheet.Rows[header])
	if err != nil {
		return Summary{}, err
	}
	extraction := ExtractRows(sheet.Rows, header, cols)
	skippedImages := AssociateImages(extraction.Rows, sheet.Images, p.opts.MaxImageBytes)
	for _, w := range extraction.Warnings {
		p.log.Debug("row coercion", zap.Int("row", w.Row), zap.String("field", string(w.Field)), zap.String("reason", w.Reason))
	}

	var merged MergeResult
	importCtx := domain.WithOrigin(ctx, domain.OriginImport)
	err = store.RunInTransaction(importCtx, func(tx domain.Transaction) error {
		merged = Merge(tx.Snapshot(), extraction.Rows, p.opts.NewID, p.opts.Now().UnixMilli())
		for _, project := range merged.Projects {
			if _, err := tx.UpsertProject(project); err != nil {
				return fmt.Errorf("import %s: %w", project.Name, err)
			}
		}
		if len(merged.Projects) == 0 {
			return errNoChanges
		}
		if p.opts.Commit != nil {
			return p.opts.Commit(importCtx, tx, merged)
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNoChanges) {
		return Summary{}, err
	}

	summary := Summary{
		Added:             merged.Added,
		Updated:           merged.Updated,
		Unchanged:         merged.Unchanged,
		SkippedDuplicates: merged.SkippedDuplicates,
		SkippedInvalid:    extraction.Skipped,
		SkippedImages:     skippedImages,
		Photos:            merged.Photos,
		Warnings:          extraction.Warnings,
	}
	metrics.RecordImportRows("added", summary.Added)
	metrics.RecordImportRows("updated", summary.Updated)
	metrics.RecordImportRows("unchanged", summary.Unchanged)
	metrics.RecordImportRows("duplicate", summary.SkippedDuplicates)
	metrics.RecordImportRows("invalid", summary.SkippedInvalid)
	p.log.Info("import finished",
		zap.String("sheet", sheet.Name),
		zap.Int("added", summary.Added),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped_duplicates", summary.SkippedDuplicates),
		zap.Int("skipped_invalid", summary.SkippedInvalid),
		zap.Int("photos", summary.Photos))
	return summary, nil
}
