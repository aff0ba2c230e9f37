// Package directory links the entity store to an external directory holding a
// single JSON document. Access is governed by a four-state permission machine;
// every I/O failure degrades the channel to Denied instead of reaching callers.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"worksite/internal/blob"
	"worksite/internal/logging"
	"worksite/internal/metrics"
	"worksite/pkg/domain"
)

var (
	// ErrInvalidTransition rejects a permission change the state machine forbids.
	ErrInvalidTransition = errors.New("directory: invalid permission transition")
	// ErrPermissionDenied is returned for I/O attempted without a grant.
	ErrPermissionDenied = errors.New("directory: permission denied")
	// ErrPermissionPending means the prompt was not answered in time.
	ErrPermissionPending = errors.New("directory: permission prompt pending")
	// ErrIO wraps read and write failures against the directory.
	ErrIO = errors.New("directory: i/o failure")
	// ErrNoHandle is returned when permission is requested before a handle is held.
	ErrNoHandle = errors.New("directory: no handle")
)

// DefaultPromptTimeout bounds how long a permission prompt may stay unanswered.
const DefaultPromptTimeout = 30 * time.Second

var transitions = map[domain.Permission][]domain.Permission{
	domain.PermissionUnlinked:  {domain.PermissionPrompting},
	domain.PermissionPrompting: {domain.PermissionGranted, domain.PermissionDenied},
	domain.PermissionDenied:    {domain.PermissionPrompting},
	domain.PermissionGranted:   {domain.PermissionDenied},
}

func allowed(from, to domain.Permission) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// GrantedHook runs once for every transition into Granted.
type GrantedHook func(ctx context.Context) error

// Options configures a Channel.
type Options struct {
	Picker        Picker
	Prompter      Prompter
	Handles       HandleStore
	Opener        Opener
	PromptTimeout time.Duration
	// Watch enables the fsnotify watcher for filesystem handles.
	Watch  bool
	Logger *zap.Logger
}

// Channel is the permission-gated link to one directory.
type Channel struct {
	opts Options
	log  *zap.Logger

	mu        sync.Mutex
	handle    *Handle
	store     blob.Store
	perm      domain.Permission
	lastSaved time.Time
	session   uint64
	watcher   *Watcher

	hookMu sync.Mutex
	hooks  []GrantedHook
}

// NewChannel returns an Unlinked channel.
func NewChannel(opts Options) *Channel {
	if opts.Prompter == nil {
		opts.Prompter = AutoGrant
	}
	if opts.Opener == nil {
		opts.Opener = OpenBlob
	}
	if opts.PromptTimeout <= 0 {
		opts.PromptTimeout = DefaultPromptTimeout
	}
	return &Channel{
		opts: opts,
		log:  logging.Component(opts.Logger, "directory"),
		perm: domain.PermissionUnlinked,
	}
}

// OnGranted registers a hook run after each transition into Granted.
func (c *Channel) OnGranted(hook GrantedHook) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.hooks = append(c.hooks, hook)
}

// State reports the current sync state.
func (c *Channel) State() domain.SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.SyncState{
		Connected:  c.perm == domain.PermissionGranted,
		Permission: c.perm,
		HasHandle:  c.handle != nil,
		LastSaved:  c.lastSaved,
	}
}

// Handle returns the held handle, if any.
func (c *Channel) Handle() (Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		return Handle{}, false
	}
	return *c.handle, true
}

// LastSaved returns the timestamp of the last document this process wrote or
// adopted.
func (c *Channel) LastSaved() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSaved
}

// SetLastSaved records the last-saved timestamp, typically seeded from cache.
func (c *Channel) SetLastSaved(ts time.Time) {
	c.mu.Lock()
	c.lastSaved = ts
	c.mu.Unlock()
}

// Restore re-offers a handle persisted by an earlier process. The channel stays
// Unlinked; permission must be requested again.
func (c *Channel) Restore(ctx context.Context) (bool, error) {
	if c.opts.Handles == nil {
		return false, nil
	}
	data, ok, err := c.opts.Handles.LoadHandle(ctx)
	if err != nil || !ok {
		return false, err
	}
	h, err := decodeHandle(data)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	c.handle = &h
	c.mu.Unlock()
	c.log.Info("directory handle restored", zap.Stringer("handle", h))
	return true, nil
}

// Connect acquires a handle when none is held, persists it and requests
// permission. Connecting an already granted channel is a no-op.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.perm == domain.PermissionGranted {
		c.mu.Unlock()
		return nil
	}
	held := c.handle != nil
	c.mu.Unlock()

	if !held {
		if c.opts.Picker == nil {
			return ErrNoHandle
		}
		h, err := c.opts.Picker.Pick(ctx)
		if err != nil {
			return fmt.Errorf("pick directory: %w", err)
		}
		c.mu.Lock()
		c.handle = &h
		c.mu.Unlock()
		c.persistHandle(ctx, h)
	}
	return c.RequestPermission(ctx)
}

// ConnectTo replaces the held handle with h and requests permission.
func (c *Channel) ConnectTo(ctx context.Context, h Handle) error {
	c.mu.Lock()
	if c.perm == domain.PermissionGranted {
		c.mu.Unlock()
		return fmt.Errorf("%w: already granted, disconnect first", ErrInvalidTransition)
	}
	c.handle = &h
	c.mu.Unlock()
	c.persistHandle(ctx, h)
	return c.RequestPermission(ctx)
}

func (c *Channel) persistHandle(ctx context.Context, h Handle) {
	if c.opts.Handles == nil {
		return
	}
	data, err := encodeHandle(h)
	if err == nil {
		err = c.opts.Handles.SaveHandle(ctx, data)
	}
	if err != nil {
		c.log.Warn("persist directory handle", zap.Error(err))
	}
}

// RequestPermission prompts for read-write access. It resolves to Granted, or
// to Denied with ErrPermissionDenied, ErrPermissionPending or ErrIO.
func (c *Channel) RequestPermission(ctx context.Context) error {
	c.mu.Lock()
	if c.handle == nil {
		c.mu.Unlock()
		return ErrNoHandle
	}
	if err := c.transitionLocked(domain.PermissionPrompting); err != nil {
		c.mu.Unlock()
		return err
	}
	h := *c.handle
	session := c.session
	c.mu.Unlock()

	granted, err := c.prompt(ctx, h)
	if err == nil && !granted {
		err = ErrPermissionDenied
	}
	var store blob.Store
	if err == nil {
		store, err = c.opts.Opener(ctx, h)
		if err != nil {
			err = fmt.Errorf("%w: open %s: %v", ErrIO, h, err)
		} else if _, serr := store.Stat(ctx, domain.DocumentName); serr != nil && !blob.IsNotFound(serr) {
			// A missing db.json is a fresh directory; anything else means
			// the grant cannot be used.
			err = fmt.Errorf("%w: probe %s: %v", ErrIO, h, serr)
		}
	}

	c.mu.Lock()
	if c.session != session || c.perm != domain.PermissionPrompting {
		c.mu.Unlock()
		return fmt.Errorf("%w: channel changed while prompting", ErrInvalidTransition)
	}
	if err != nil {
		_ = c.transitionLocked(domain.PermissionDenied)
		c.mu.Unlock()
		c.log.Warn("directory permission not granted", zap.Stringer("handle", h), zap.Error(err))
		return err
	}
	c.store = store
	_ = c.transitionLocked(domain.PermissionGranted)
	c.mu.Unlock()

	c.startWatcher(h, session)
	c.runHooks(ctx)
	return nil
}

func (c *Channel) prompt(ctx context.Context, h Handle) (bool, error) {
	pctx, cancel := context.WithTimeout(ctx, c.opts.PromptTimeout)
	defer cancel()

	type answer struct {
		granted bool
		err     error
	}
	done := make(chan answer, 1)
	go func() {
		granted, err := c.opts.Prompter.Prompt(pctx, h)
		done <- answer{granted, err}
	}()
	select {
	case a := <-done:
		if a.err != nil && errors.Is(a.err, context.DeadlineExceeded) {
			return false, ErrPermissionPending
		}
		return a.granted, a.err
	case <-pctx.Done():
		return false, ErrPermissionPending
	}
}

func (c *Channel) runHooks(ctx context.Context) {
	c.hookMu.Lock()
	hooks := append([]GrantedHook(nil), c.hooks...)
	c.hookMu.Unlock()
	for _, hook := range hooks {
		if err := hook(ctx); err != nil {
			c.log.Warn("granted hook failed", zap.Error(err))
		}
	}
}

// ReadSnapshot loads the directory document. It returns nil without error when
// the channel is not granted or no document exists yet. Read or decode failures
// move the channel to Denied and are returned wrapped in ErrIO.
func (c *Channel) ReadSnapshot(ctx context.Context) (*domain.Document, error) {
	store, session, ok := c.granted()
	if !ok {
		return nil, nil
	}
	_, rc, err := store.Get(ctx, domain.DocumentName)
	if err != nil {
		if blob.IsNotFound(err) {
			metrics.RecordDirectoryOperation(string(store.Driver()), "read", nil)
			return nil, nil
		}
		return nil, c.fail(session, store, "read", err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, c.fail(session, store, "read", err)
	}
	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, c.fail(session, store, "read", fmt.Errorf("decode %s: %w", domain.DocumentName, err))
	}
	for i := range doc.Projects {
		doc.Projects[i] = domain.Normalize(doc.Projects[i])
	}
	metrics.RecordDirectoryOperation(string(store.Driver()), "read", nil)
	return &doc, nil
}

// WriteSnapshot replaces the directory document in full.
func (c *Channel) WriteSnapshot(ctx context.Context, doc domain.Document) error {
	store, session, ok := c.granted()
	if !ok {
		return ErrPermissionDenied
	}
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	if _, err := store.Put(ctx, domain.DocumentName, bytes.NewReader(data), blob.PutOptions{ContentType: "application/json"}); err != nil {
		return c.fail(session, store, "write", err)
	}
	metrics.RecordDirectoryOperation(string(store.Driver()), "write", nil)
	c.mu.Lock()
	if doc.LastSaved.After(c.lastSaved) {
		c.lastSaved = doc.LastSaved
	}
	c.mu.Unlock()
	return nil
}

func encodeDocument(doc domain.Document) ([]byte, error) {
	if doc.Projects == nil {
		doc.Projects = []domain.Project{}
	}
	if doc.Users == nil {
		doc.Users = []domain.User{}
	}
	if doc.AuditLogs == nil {
		doc.AuditLogs = []domain.AuditLogEntry{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", domain.DocumentName, err)
	}
	return data, nil
}

func (c *Channel) granted() (blob.Store, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.perm != domain.PermissionGranted || c.store == nil {
		return nil, 0, false
	}
	return c.store, c.session, true
}

// fail logs an I/O failure and degrades the session it happened in to Denied.
func (c *Channel) fail(session uint64, store blob.Store, op string, err error) error {
	metrics.RecordDirectoryOperation(string(store.Driver()), op, err)
	c.log.Warn("directory "+op+" failed", zap.Error(err))
	c.invalidate(session, "i/o failure")
	return fmt.Errorf("%w: %s: %v", ErrIO, op, err)
}

func (c *Channel) invalidate(session uint64, reason string) {
	c.mu.Lock()
	if c.session != session || c.perm != domain.PermissionGranted {
		c.mu.Unlock()
		return
	}
	c.store = nil
	_ = c.transitionLocked(domain.PermissionDenied)
	w := c.watcher
	c.watcher = nil
	c.mu.Unlock()
	c.log.Warn("directory access lost", zap.String("reason", reason))
	if w != nil {
		go func() { _ = w.Stop() }()
	}
}

// Disconnect drops the grant and forgets the handle. It is allowed from any
// state.
func (c *Channel) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	from := c.perm
	c.perm = domain.PermissionUnlinked
	c.handle = nil
	c.store = nil
	c.session++
	w := c.watcher
	c.watcher = nil
	c.mu.Unlock()

	if from != domain.PermissionUnlinked {
		metrics.RecordPermissionTransition(string(from), string(domain.PermissionUnlinked))
	}
	if w != nil {
		_ = w.Stop()
	}
	if c.opts.Handles != nil {
		if err := c.opts.Handles.ClearHandle(ctx); err != nil {
			return err
		}
	}
	c.log.Info("directory disconnected")
	return nil
}

func (c *Channel) transitionLocked(to domain.Permission) error {
	from := c.perm
	if !allowed(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	c.perm = to
	if to == domain.PermissionPrompting {
		c.session++
	}
	metrics.RecordPermissionTransition(string(from), string(to))
	c.log.Debug("permission transition", zap.String("from", string(from)), zap.String("to", string(to)))
	return nil
}

func (c *Channel) startWatcher(h Handle, session uint64) {
	if !c.opts.Watch || h.Driver != blob.DriverFilesystem {
		return
	}
	w, err := WatchRoot(h.Root, func() { c.invalidate(session, "directory removed") }, c.log)
	if err != nil {
		c.log.Warn("watch directory", zap.String("root", h.Root), zap.Error(err))
		return
	}
	c.mu.Lock()
	if c.session != session || c.perm != domain.PermissionGranted {
		c.mu.Unlock()
		_ = w.Stop()
		return
	}
	c.watcher = w
	c.mu.Unlock()
}
