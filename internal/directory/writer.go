package directory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"worksite/internal/logging"
	"worksite/internal/metrics"
	"worksite/pkg/domain"
)

// ErrSuperseded reports a write dropped because a newer one was queued behind it.
var ErrSuperseded = errors.New("directory: write superseded")

// Writer serialises full-document writes. A write that is still waiting when
// a newer one arrives is dropped, so the last scheduled document wins.
type Writer struct {
	ch  *Channel
	log *zap.Logger

	mu      sync.Mutex
	latest  atomic.Uint64
	pending sync.WaitGroup
	onSaved func(ctx context.Context, ts time.Time)
}

// NewWriter wraps ch.
func NewWriter(ch *Channel, logger *zap.Logger) *Writer {
	return &Writer{ch: ch, log: logging.Component(logger, "directory-writer")}
}

// Write writes doc unless a newer write has been requested meanwhile.
func (w *Writer) Write(ctx context.Context, doc domain.Document) error {
	gen := w.latest.Add(1)
	return w.write(ctx, gen, doc)
}

func (w *Writer) write(ctx context.Context, gen uint64, doc domain.Document) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.latest.Load() {
		h, _ := w.ch.Handle()
		metrics.DirectoryOperations.WithLabelValues(string(h.Driver), "write", metrics.ResultSkipped).Inc()
		return ErrSuperseded
	}
	if err := w.ch.WriteSnapshot(ctx, doc); err != nil {
		return err
	}
	if w.onSaved != nil {
		w.onSaved(ctx, doc.LastSaved)
	}
	return nil
}

// OnSaved registers fn to run after every successful write, while writes are
// still serialised.
func (w *Writer) OnSaved(fn func(ctx context.Context, ts time.Time)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onSaved = fn
}

// Schedule queues doc for writing in the background. Errors are logged.
func (w *Writer) Schedule(ctx context.Context, doc domain.Document) {
	gen := w.latest.Add(1)
	w.pending.Add(1)
	go func() {
		defer w.pending.Done()
		err := w.write(context.WithoutCancel(ctx), gen, doc)
		switch {
		case err == nil, errors.Is(err, ErrSuperseded), errors.Is(err, ErrPermissionDenied):
		default:
			w.log.Warn("scheduled directory write failed", zap.Error(err))
		}
	}()
}

// Flush blocks until every scheduled write has finished or been dropped.
func (w *Writer) Flush() { w.pending.Wait() }
