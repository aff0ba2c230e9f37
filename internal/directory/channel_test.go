package directory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"worksite/internal/blob"
	"worksite/pkg/domain"
)

type memHandles struct {
	mu   sync.Mutex
	data []byte
}

func (m *memHandles) SaveHandle(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	return nil
}

func (m *memHandles) LoadHandle(context.Context) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, false, nil
	}
	return append([]byte(nil), m.data...), true, nil
}

func (m *memHandles) ClearHandle(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}

var memHandle = Handle{Driver: blob.DriverMemory, Root: "site"}

func newMemChannel(t *testing.T, prompter Prompter) (*Channel, *blob.MemoryStore, *memHandles) {
	t.Helper()
	store := blob.NewMemoryStore()
	handles := &memHandles{}
	ch := NewChannel(Options{
		Picker:        StaticPicker(memHandle),
		Prompter:      prompter,
		Handles:       handles,
		Opener:        func(context.Context, Handle) (blob.Store, error) { return store, nil },
		PromptTimeout: 50 * time.Millisecond,
	})
	return ch, store, handles
}

func sampleDocument(ts time.Time) domain.Document {
	return domain.Document{
		Projects: []domain.Project{
			domain.NewProject("p1", "Acme", domain.ClassConstruction),
		},
		Users:     []domain.User{{ID: "u1", Name: "Ann", Email: "ann@example.com", Role: domain.RoleAdmin}},
		LastSaved: ts,
	}
}

func TestChannelStartsUnlinked(t *testing.T) {
	ch, _, _ := newMemChannel(t, nil)
	st := ch.State()
	require.Equal(t, domain.PermissionUnlinked, st.Permission)
	require.False(t, st.Connected)
	require.False(t, st.HasHandle)
	require.ErrorIs(t, ch.RequestPermission(context.Background()), ErrNoHandle)
}

func TestConnectGrantsAndPersistsHandle(t *testing.T) {
	ch, _, handles := newMemChannel(t, nil)
	require.NoError(t, ch.Connect(context.Background()))

	st := ch.State()
	require.Equal(t, domain.PermissionGranted, st.Permission)
	require.True(t, st.Connected)
	require.True(t, st.HasHandle)

	data, ok, err := handles.LoadHandle(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	h, err := decodeHandle(data)
	require.NoError(t, err)
	require.Equal(t, memHandle, h)

	require.NoError(t, ch.Connect(context.Background()), "connecting a granted channel is a no-op")
}

func TestDeniedThenRetry(t *testing.T) {
	answer := false
	prompter := PrompterFunc(func(context.Context, Handle) (bool, error) { return answer, nil })
	ch, _, _ := newMemChannel(t, prompter)

	require.ErrorIs(t, ch.Connect(context.Background()), ErrPermissionDenied)
	require.Equal(t, domain.PermissionDenied, ch.State().Permission)

	answer = true
	require.NoError(t, ch.RequestPermission(context.Background()))
	require.Equal(t, domain.PermissionGranted, ch.State().Permission)
}

func TestUnansweredPromptDegradesToDenied(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	prompter := PrompterFunc(func(context.Context, Handle) (bool, error) {
		<-block
		return true, nil
	})
	ch, _, _ := newMemChannel(t, prompter)

	start := time.Now()
	err := ch.Connect(context.Background())
	require.ErrorIs(t, err, ErrPermissionPending)
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, domain.PermissionDenied, ch.State().Permission)
}

func TestGrantedHooksRunOncePerGrant(t *testing.T) {
	ch, _, _ := newMemChannel(t, nil)
	calls := 0
	ch.OnGranted(func(context.Context) error {
		calls++
		return nil
	})
	ch.OnGranted(func(context.Context) error { return fmt.Errorf("hook errors are only logged") })

	require.NoError(t, ch.Connect(context.Background()))
	require.Equal(t, 1, calls)
	require.NoError(t, ch.Connect(context.Background()))
	require.Equal(t, 1, calls)
}

func TestReadSnapshotAbsentAndUngranted(t *testing.T) {
	ch, store, _ := newMemChannel(t, nil)
	doc, err := ch.ReadSnapshot(context.Background())
	require.NoError(t, err)
	require.Nil(t, doc, "ungranted read yields nothing")

	require.ErrorIs(t, ch.WriteSnapshot(context.Background(), domain.Document{}), ErrPermissionDenied)
	_, err = store.Stat(context.Background(), domain.DocumentName)
	require.True(t, blob.IsNotFound(err), "a denied write performs no i/o")

	require.NoError(t, ch.Connect(context.Background()))
	doc, err = ch.ReadSnapshot(context.Background())
	require.NoError(t, err)
	require.Nil(t, doc, "missing document is not an error")
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	ch, _, _ := newMemChannel(t, nil)
	require.NoError(t, ch.Connect(ctx))

	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, ch.WriteSnapshot(ctx, sampleDocument(ts)))
	require.Equal(t, ts, ch.LastSaved())

	first, err := ch.ReadSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Len(t, first.Projects, 1)
	require.Equal(t, "Acme", first.Projects[0].Name)

	require.NoError(t, ch.WriteSnapshot(ctx, *first))
	second, err := ch.ReadSnapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestWriteFailureTransitionsToDenied(t *testing.T) {
	ctx := context.Background()
	ch, store, _ := newMemChannel(t, nil)
	require.NoError(t, ch.Connect(ctx))

	store.FailWrites = true
	err := ch.WriteSnapshot(ctx, sampleDocument(time.Now()))
	require.ErrorIs(t, err, ErrIO)
	require.Equal(t, domain.PermissionDenied, ch.State().Permission)
	require.ErrorIs(t, ch.WriteSnapshot(ctx, sampleDocument(time.Now())), ErrPermissionDenied)
}

func TestCorruptDocumentTransitionsToDenied(t *testing.T) {
	ctx := context.Background()
	ch, store, _ := newMemChannel(t, nil)
	require.NoError(t, ch.Connect(ctx))
	_, err := store.Put(ctx, domain.DocumentName, strings.NewReader("{not json"), blob.PutOptions{})
	require.NoError(t, err)

	doc, err := ch.ReadSnapshot(ctx)
	require.Nil(t, doc)
	require.ErrorIs(t, err, ErrIO)
	require.Equal(t, domain.PermissionDenied, ch.State().Permission)
}

func TestRestoreReoffersHandleWithoutGrant(t *testing.T) {
	ctx := context.Background()
	ch, store, handles := newMemChannel(t, nil)
	require.NoError(t, ch.Connect(ctx))

	restarted := NewChannel(Options{
		Handles: handles,
		Opener:  func(context.Context, Handle) (blob.Store, error) { return store, nil },
	})
	ok, err := restarted.Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	st := restarted.State()
	require.Equal(t, domain.PermissionUnlinked, st.Permission)
	require.True(t, st.HasHandle)

	require.NoError(t, restarted.RequestPermission(ctx))
	require.True(t, restarted.State().Connected)
}

func TestDisconnectFromAnyState(t *testing.T) {
	ctx := context.Background()
	ch, _, handles := newMemChannel(t, PrompterFunc(func(context.Context, Handle) (bool, error) { return false, nil }))
	require.Error(t, ch.Connect(ctx))
	require.Equal(t, domain.PermissionDenied, ch.State().Permission)

	require.NoError(t, ch.Disconnect(ctx))
	st := ch.State()
	require.Equal(t, domain.PermissionUnlinked, st.Permission)
	require.False(t, st.HasHandle)
	_, ok, err := handles.LoadHandle(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTransitionTable(t *testing.T) {
	require.True(t, allowed(domain.PermissionUnlinked, domain.PermissionPrompting))
	require.True(t, allowed(domain.PermissionDenied, domain.PermissionPrompting))
	require.True(t, allowed(domain.PermissionGranted, domain.PermissionDenied))
	require.False(t, allowed(domain.PermissionUnlinked, domain.PermissionGranted))
	require.False(t, allowed(domain.PermissionGranted, domain.PermissionPrompting))
	require.False(t, allowed(domain.PermissionGranted, domain.PermissionUnlinked), "unlinking is only possible through Disconnect")
}

func TestFilesystemRootRemovalInvalidatesChannel(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "site")
	require.NoError(t, os.MkdirAll(root, 0o750))
	ch := NewChannel(Options{
		Picker: StaticPicker(Handle{Driver: blob.DriverFilesystem, Root: root}),
		Watch:  true,
	})
	t.Cleanup(func() { _ = ch.Disconnect(ctx) })
	require.NoError(t, ch.Connect(ctx))
	require.NoError(t, ch.WriteSnapshot(ctx, sampleDocument(time.Now().UTC())))

	data, err := os.ReadFile(filepath.Join(root, domain.DocumentName))
	require.NoError(t, err)
	require.Contains(t, string(data), `"projects"`)

	require.NoError(t, os.RemoveAll(root))
	require.Eventually(t, func() bool {
		return ch.State().Permission == domain.PermissionDenied
	}, 5*time.Second, 20*time.Millisecond)
}

type unreachableStore struct{ blob.Store }

func (unreachableStore) Stat(context.Context, string) (blob.Info, error) {
	return blob.Info{}, fmt.Errorf("connection refused")
}

func TestGrantProbesTheDirectory(t *testing.T) {
	ctx := context.Background()
	ch := NewChannel(Options{
		Picker:   StaticPicker(memHandle),
		Prompter: AutoGrant,
		Opener: func(context.Context, Handle) (blob.Store, error) {
			return unreachableStore{blob.NewMemory()}, nil
		},
	})
	err := ch.Connect(ctx)
	require.ErrorIs(t, err, ErrIO)
	require.Equal(t, domain.PermissionDenied, ch.State().Permission)
	require.True(t, ch.State().HasHandle)
}

func TestParseLocator(t *testing.T) {
	h, err := ParseLocator("s3://bucket/sites/north/")
	require.NoError(t, err)
	require.Equal(t, Handle{Driver: blob.DriverS3, Bucket: "bucket", Prefix: "sites/north"}, h)
	require.Equal(t, "s3://bucket/sites/north", h.String())

	h, err = ParseLocator("memory:scratch")
	require.NoError(t, err)
	require.Equal(t, blob.DriverMemory, h.Driver)

	h, err = ParseLocator("relative/dir")
	require.NoError(t, err)
	require.Equal(t, blob.DriverFilesystem, h.Driver)
	require.True(t, filepath.IsAbs(h.Root))

	_, err = ParseLocator("  ")
	require.Error(t, err)
	_, err = ParseLocator("s3://")
	require.Error(t, err)
}
