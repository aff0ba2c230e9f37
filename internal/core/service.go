// Package core wires the storage tiers of worksite behind one Service: the
// authoritative entity store, the best-effort cache, the permission-gated
// directory channel and the spreadsheet import pipeline.
package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"worksite/internal/cache"
	"worksite/internal/directory"
	"worksite/internal/importer"
	"worksite/internal/infra/persistence/memory"
	"worksite/internal/logging"
	"worksite/internal/reconcile"
	"worksite/pkg/domain"
)

// Options configures a Service. Cache is required.
type Options struct {
	Store     *memory.Store
	Cache     *cache.Layer
	Directory directory.Options
	Import    importer.Options
	Fetcher   *importer.Fetcher
	// ImportDebounce is passed to the source watcher used by WatchImport.
	ImportDebounce time.Duration
	NewID          func() string
	Now            func() time.Time
	Logger         *zap.Logger
}

// Service coordinates every mutation and its propagation to the cache and
// the linked directory.
type Service struct {
	store      *memory.Store
	cache      *cache.Layer
	channel    *directory.Channel
	writer     *directory.Writer
	reconciler *reconcile.Reconciler
	importer   *importer.Pipeline
	fetcher    *importer.Fetcher
	debounce   time.Duration
	newID      func() string
	now        func() time.Time
	log        *zap.Logger

	// cacheMu orders cache writes so last_saved never moves backwards.
	cacheMu sync.Mutex

	mu             sync.Mutex
	importURL      string
	lastImportDate string

	unsubscribe func()
}

// ErrCacheRequired is returned by NewService when no cache layer is given.
var ErrCacheRequired = errors.New("core: cache layer is required")

// NewService assembles a Service and subscribes its write path to the store.
func NewService(opts Options) (*Service, error) {
	if opts.Cache == nil {
		return nil, ErrCacheRequired
	}
	if opts.Store == nil {
		opts.Store = memory.NewStore()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Fetcher == nil {
		opts.Fetcher = &importer.Fetcher{}
	}
	if opts.Directory.Handles == nil {
		opts.Directory.Handles = opts.Cache
	}
	if opts.Directory.Logger == nil {
		opts.Directory.Logger = opts.Logger
	}
	if opts.Import.Logger == nil {
		opts.Import.Logger = opts.Logger
	}
	if opts.Import.NewID == nil {
		opts.Import.NewID = opts.NewID
	}
	if opts.Import.Now == nil {
		opts.Import.Now = opts.Now
	}

	s := &Service{
		store:    opts.Store,
		cache:    opts.Cache,
		channel:  directory.NewChannel(opts.Directory),
		fetcher:  opts.Fetcher,
		debounce: opts.ImportDebounce,
		newID:    opts.NewID,
		now:      opts.Now,
		log:      logging.Component(opts.Logger, "service"),
	}
	opts.Import.Commit = s.auditImport
	s.importer = importer.NewPipeline(opts.Import)
	s.writer = directory.NewWriter(s.channel, opts.Logger)
	s.writer.OnSaved(func(ctx context.Context, ts time.Time) { s.recordLastSaved(ctx, ts) })
	s.reconciler = reconcile.New(s.store, syncDirectory{Channel: s.channel, writer: s.writer}, opts.Logger,
		reconcile.WithClock(s.now),
		reconcile.WithRecorder(saveRecorder{s}),
	)
	s.channel.OnGranted(s.reconciler.Hook())
	s.unsubscribe = s.store.Subscribe(s.onEvent)
	return s, nil
}

// Start seeds the store from the cache and re-offers a persisted directory
// handle. Permission is not re-granted; callers must request it again.
func (s *Service) Start(ctx context.Context) error {
	if state, ok := s.cache.Restore(ctx); ok {
		s.store.ImportState(memory.SnapshotFromLists(state.Projects, state.Users, state.AuditLogs))
		s.mu.Lock()
		s.importURL = state.ImportURL
		s.lastImportDate = state.LastImportDate
		s.mu.Unlock()
		s.channel.SetLastSaved(state.LastSaved)
		s.log.Info("store restored from cache",
			zap.Int("projects", len(state.Projects)),
			zap.Int("users", len(state.Users)))
	}
	if restored, err := s.channel.Restore(ctx); err != nil {
		s.log.Warn("restore directory handle", zap.Error(err))
	} else if restored {
		s.log.Info("directory handle available, permission required")
	}
	return nil
}

// Flush waits for scheduled directory writes.
func (s *Service) Flush() { s.writer.Flush() }

// Close stops the write path after pending writes complete.
func (s *Service) Close() error {
	s.unsubscribe()
	s.writer.Flush()
	return nil
}

// Store exposes the entity store for read-mostly callers.
func (s *Service) Store() *memory.Store { return s.store }

// Subscribe registers a presentation-layer listener for store events.
func (s *Service) Subscribe(fn func(domain.Event)) func() { return s.store.Subscribe(fn) }

// onEvent is the write path: every committed mutation is snapshotted to the
// cache and, unless it came from the directory itself, written there too.
func (s *Service) onEvent(evt domain.Event) {
	ctx := domain.WithOrigin(context.Background(), evt.Origin)
	s.snapshotCache(ctx)
	if evt.Origin == domain.OriginSync {
		return
	}
	if s.channel.State().Permission != domain.PermissionGranted {
		return
	}
	s.writer.Schedule(ctx, s.document())
}

func (s *Service) snapshotCache(ctx context.Context) {
	s.mu.Lock()
	importURL, lastImport := s.importURL, s.lastImportDate
	s.mu.Unlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache.Snapshot(ctx, cache.State{
		Projects:       s.store.List(),
		Users:          s.store.ListUsers(),
		AuditLogs:      s.store.ListAudit(),
		LastSaved:      s.channel.LastSaved(),
		ImportURL:      importURL,
		LastImportDate: lastImport,
	})
}

func (s *Service) recordLastSaved(ctx context.Context, ts time.Time) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if err := s.cache.SetLastSaved(ctx, ts); err != nil {
		s.log.Warn("record last saved", zap.Error(err))
	}
}

func (s *Service) document() domain.Document {
	return domain.Document{
		Projects:  s.store.List(),
		Users:     s.store.ListUsers(),
		AuditLogs: s.store.ListAudit(),
		LastSaved: s.now(),
	}
}

type saveRecorder struct{ s *Service }

func (r saveRecorder) SetLastSaved(ctx context.Context, ts time.Time) error {
	r.s.recordLastSaved(ctx, ts)
	return nil
}

// syncDirectory routes reconciler writes through the Writer so they are
// ordered with the write path. A reconciled document superseded by a later
// write is not an error: the later document was built after the merge.
type syncDirectory struct {
	*directory.Channel
	writer *directory.Writer
}

func (d syncDirectory) WriteSnapshot(ctx context.Context, doc domain.Document) error {
	err := d.writer.Write(ctx, doc)
	if errors.Is(err, directory.ErrSuperseded) {
		return nil
	}
	return err
}
