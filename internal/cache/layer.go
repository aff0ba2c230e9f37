// Package cache implements the best-effort local snapshot tier. It seeds the
// entity store at start-up and is rewritten after every mutation; failures are
// logged and counted but never reach callers.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"worksite/internal/cache/core"
	"worksite/internal/logging"
	"worksite/internal/metrics"
	"worksite/pkg/domain"
)

// Fixed cache keys.
const (
	KeyProjects        = "projects"
	KeyUsers           = "users"
	KeyAuditLogs       = "audit_logs"
	KeyLastSaved       = "last_saved"
	KeyImportURL       = "import_url"
	KeyLastImportDate  = "last_import_date"
	KeyDirectoryHandle = "directory_handle"
)

// ErrEmptyImportURL rejects blank import source locators.
var ErrEmptyImportURL = errors.New("import url must not be empty")

// State is the full tree written by Snapshot.
type State struct {
	Projects       []domain.Project
	Users          []domain.User
	AuditLogs      []domain.AuditLogEntry
	LastSaved      time.Time
	ImportURL      string
	LastImportDate string
}

// Layer serialises State to a core.Backend.
type Layer struct {
	backend core.Backend
	log     *zap.Logger
}

// NewLayer wraps backend. A nil logger disables logging.
func NewLayer(backend core.Backend, logger *zap.Logger) *Layer {
	return &Layer{backend: backend, log: logging.Component(logger, "cache")}
}

// Backend returns the underlying backend.
func (l *Layer) Backend() core.Backend { return l.backend }

// Snapshot writes every fixed key atomically. Failures, including
// core.ErrQuotaExceeded, leave the previous snapshot in place and are only
// logged.
func (l *Layer) Snapshot(ctx context.Context, state State) {
	driver := string(l.backend.Driver())
	entries, size, err := encodeState(state)
	if err != nil {
		l.log.Error("encode cache snapshot", zap.Error(err))
		metrics.RecordCacheSnapshot(driver, metrics.ResultError, 0)
		return
	}
	if err := l.backend.Save(ctx, entries); err != nil {
		result := metrics.ResultError
		if errors.Is(err, core.ErrQuotaExceeded) {
			result = metrics.ResultQuota
		}
		l.log.Warn("cache snapshot skipped", zap.String("backend", driver), zap.Int("bytes", size), zap.Error(err))
		metrics.RecordCacheSnapshot(driver, result, size)
		return
	}
	metrics.RecordCacheSnapshot(driver, metrics.ResultSuccess, size)
}

func encodeState(state State) (map[string][]byte, int, error) {
	projects := state.Projects
	if projects == nil {
		projects = []domain.Project{}
	}
	users := state.Users
	if users == nil {
		users = []domain.User{}
	}
	audit := state.AuditLogs
	if audit == nil {
		audit = []domain.AuditLogEntry{}
	}
	values := map[string]any{
		KeyProjects:       projects,
		KeyUsers:          users,
		KeyAuditLogs:      audit,
		KeyLastSaved:      state.LastSaved,
		KeyImportURL:      state.ImportURL,
		KeyLastImportDate: state.LastImportDate,
	}
	entries := make(map[string][]byte, len(values))
	size := 0
	for k, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, 0, fmt.Errorf("encode %s: %w", k, err)
		}
		entries[k] = data
		size += len(data)
	}
	return entries, size, nil
}

// Restore returns the last successfully written snapshot, or false when none
// exists or it cannot be read.
func (l *Layer) Restore(ctx context.Context) (*State, bool) {
	raw, err := l.backend.Load(ctx)
	if err != nil {
		l.log.Warn("cache restore failed", zap.Error(err))
		return nil, false
	}
	if _, ok := raw[KeyProjects]; !ok {
		return nil, false
	}
	var state State
	targets := map[string]any{
		KeyProjects:       &state.Projects,
		KeyUsers:          &state.Users,
		KeyAuditLogs:      &state.AuditLogs,
		KeyLastSaved:      &state.LastSaved,
		KeyImportURL:      &state.ImportURL,
		KeyLastImportDate: &state.LastImportDate,
	}
	for key, target := range targets {
		payload, ok := raw[key]
		if !ok || len(payload) == 0 {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			l.log.Warn("cache restore decode failed", zap.String("key", key), zap.Error(err))
			return nil, false
		}
	}
	for i := range state.Projects {
		state.Projects[i] = domain.Normalize(state.Projects[i])
	}
	return &state, true
}

// SetImportURL stores the import source locator. Only emptiness is checked.
func (l *Layer) SetImportURL(ctx context.Context, url string) error {
	if strings.TrimSpace(url) == "" {
		return ErrEmptyImportURL
	}
	return l.saveValue(ctx, KeyImportURL, url)
}

// ImportURL returns the stored import source locator.
func (l *Layer) ImportURL(ctx context.Context) string {
	var url string
	l.loadValue(ctx, KeyImportURL, &url)
	return url
}

// SetLastImportDate records when the last import ran.
func (l *Layer) SetLastImportDate(ctx context.Context, date string) error {
	return l.saveValue(ctx, KeyLastImportDate, date)
}

// SetLastSaved records the timestamp of the last directory save.
func (l *Layer) SetLastSaved(ctx context.Context, ts time.Time) error {
	return l.saveValue(ctx, KeyLastSaved, ts)
}

// LastSaved returns the stored last-saved timestamp.
func (l *Layer) LastSaved(ctx context.Context) time.Time {
	var ts time.Time
	l.loadValue(ctx, KeyLastSaved, &ts)
	return ts
}

// SaveHandle persists an opaque directory handle reference.
func (l *Layer) SaveHandle(ctx context.Context, handle []byte) error {
	if err := l.backend.Save(ctx, map[string][]byte{KeyDirectoryHandle: handle}); err != nil {
		return fmt.Errorf("save directory handle: %w", err)
	}
	return nil
}

// LoadHandle returns the persisted directory handle reference, if any.
func (l *Layer) LoadHandle(ctx context.Context) ([]byte, bool, error) {
	raw, err := l.backend.Load(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("load directory handle: %w", err)
	}
	data, ok := raw[KeyDirectoryHandle]
	if !ok || len(data) == 0 {
		return nil, false, nil
	}
	return data, true, nil
}

// ClearHandle forgets the persisted directory handle reference.
func (l *Layer) ClearHandle(ctx context.Context) error {
	if err := l.backend.Delete(ctx, KeyDirectoryHandle); err != nil {
		return fmt.Errorf("clear directory handle: %w", err)
	}
	return nil
}

func (l *Layer) saveValue(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := l.backend.Save(ctx, map[string][]byte{key: data}); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (l *Layer) loadValue(ctx context.Context, key string, target any) {
	raw, err := l.backend.Load(ctx)
	if err != nil {
		l.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return
	}
	payload, ok := raw[key]
	if !ok || len(payload) == 0 {
		return
	}
	if err := json.Unmarshal(payload, target); err != nil {
		l.log.Warn("cache decode failed", zap.String("key", key), zap.Error(err))
	}
}
