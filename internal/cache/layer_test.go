package cache

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"worksite/internal/cache/core"
	memorycache "worksite/internal/infra/cache/memory"
	"worksite/pkg/domain"
)

type failingBackend struct{ core.Backend }

func (failingBackend) Load(context.Context) (map[string][]byte, error) {
	return nil, errors.New("disk gone")
}

func TestRestoreWithoutSnapshot(t *testing.T) {
	layer := NewLayer(memorycache.New(0), nil)
	state, ok := layer.Restore(context.Background())
	require.False(t, ok)
	require.Nil(t, state)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	layer := NewLayer(memorycache.New(0), nil)
	saved := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	layer.Snapshot(ctx, State{
		Projects:       []domain.Project{{ID: "p1", Name: "Acme"}},
		Users:          []domain.User{{ID: "u1", Email: "lin@example.com"}},
		AuditLogs:      []domain.AuditLogEntry{{ID: "a1", Action: domain.AuditCreateProject}},
		LastSaved:      saved,
		ImportURL:      "https://example.com/sheet.xlsx",
		LastImportDate: "05/01/2024",
	})

	state, ok := layer.Restore(ctx)
	require.True(t, ok)
	require.Len(t, state.Projects, 1)
	require.Equal(t, domain.ClassConstruction, state.Projects[0].Type)
	require.NotNil(t, state.Projects[0].Attachments)
	require.Equal(t, "lin@example.com", state.Users[0].Email)
	require.Equal(t, "a1", state.AuditLogs[0].ID)
	require.True(t, saved.Equal(state.LastSaved))
	require.Equal(t, "https://example.com/sheet.xlsx", state.ImportURL)
	require.Equal(t, "05/01/2024", state.LastImportDate)
	require.True(t, saved.Equal(layer.LastSaved(ctx)))
}

func TestSnapshotOverQuotaKeepsLastGoodSnapshot(t *testing.T) {
	ctx := context.Background()
	layer := NewLayer(memorycache.New(1024), nil)
	layer.Snapshot(ctx, State{Projects: []domain.Project{{ID: "small"}}})

	huge := domain.Project{ID: "big", Description: strings.Repeat("x", 4096)}
	require.NotPanics(t, func() {
		layer.Snapshot(ctx, State{Projects: []domain.Project{huge}})
	})

	state, ok := layer.Restore(ctx)
	require.True(t, ok)
	require.Len(t, state.Projects, 1)
	require.Equal(t, "small", state.Projects[0].ID)
}

func TestRestoreSwallowsBackendErrors(t *testing.T) {
	layer := NewLayer(failingBackend{memorycache.New(0)}, nil)
	state, ok := layer.Restore(context.Background())
	require.False(t, ok)
	require.Nil(t, state)
	require.Empty(t, layer.ImportURL(context.Background()))
}

func TestImportURLValidatesNonEmptyOnly(t *testing.T) {
	ctx := context.Background()
	layer := NewLayer(memorycache.New(0), nil)
	require.ErrorIs(t, layer.SetImportURL(ctx, "   "), ErrEmptyImportURL)
	require.NoError(t, layer.SetImportURL(ctx, "not even a url"))
	require.Equal(t, "not even a url", layer.ImportURL(ctx))
}

func TestHandleStore(t *testing.T) {
	ctx := context.Background()
	layer := NewLayer(memorycache.New(0), nil)
	_, ok, err := layer.LoadHandle(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, layer.SaveHandle(ctx, []byte(`{"driver":"fs","root":"/srv"}`)))
	data, ok, err := layer.LoadHandle(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"driver":"fs","root":"/srv"}`, string(data))

	require.NoError(t, layer.ClearHandle(ctx))
	_, ok, _ = layer.LoadHandle(ctx)
	require.False(t, ok)
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()
	b, err := OpenBackend(ctx, BackendConfig{Driver: "memory"})
	require.NoError(t, err)
	require.Equal(t, core.DriverMemory, b.Driver())

	b, err = OpenBackend(ctx, BackendConfig{SQLitePath: filepath.Join(t.TempDir(), "c.db")})
	require.NoError(t, err)
	require.Equal(t, core.DriverSQLite, b.Driver())
	require.NoError(t, b.Close())

	_, err = OpenBackend(ctx, BackendConfig{Driver: "redis"})
	require.Error(t, err)
}
