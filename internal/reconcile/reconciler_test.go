package reconcile

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"worksite/internal/infra/persistence/memory"
	"worksite/pkg/domain"
)

type fakeDirectory struct {
	doc       *domain.Document
	readErr   error
	writeErr  error
	writes    int
	lastSaved time.Time
}

func (f *fakeDirectory) ReadSnapshot(context.Context) (*domain.Document, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	if f.doc == nil {
		return nil, nil
	}
	cp := *f.doc
	cp.Projects = append([]domain.Project(nil), f.doc.Projects...)
	return &cp, nil
}

func (f *fakeDirectory) WriteSnapshot(_ context.Context, doc domain.Document) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes++
	f.doc = &doc
	f.lastSaved = doc.LastSaved
	return nil
}

func (f *fakeDirectory) LastSaved() time.Time { return f.lastSaved }

type recorder struct{ ts time.Time }

func (r *recorder) SetLastSaved(_ context.Context, ts time.Time) error {
	r.ts = ts
	return nil
}

var (
	t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
	t2 = t0.Add(2 * time.Hour)
)

func project(id, name string) domain.Project {
	return domain.NewProject(id, name, domain.ClassConstruction)
}

func seed(t *testing.T, projects ...domain.Project) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.UpsertAll(context.Background(), projects))
	return store
}

func ids(projects []domain.Project) []string {
	out := make([]string, 0, len(projects))
	for _, p := range projects {
		out = append(out, p.ID)
	}
	sort.Strings(out)
	return out
}

func TestInitialSnapshotWhenDirectoryEmpty(t *testing.T) {
	store := seed(t, project("p1", "Acme"))
	dir := &fakeDirectory{}
	rec := &recorder{}
	r := New(store, dir, nil, WithClock(func() time.Time { return t1 }), WithRecorder(rec))

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Initial)
	require.Equal(t, 1, report.Kept)
	require.Equal(t, 1, dir.writes)
	require.Equal(t, []string{"p1"}, ids(dir.doc.Projects))
	require.Equal(t, t1, dir.doc.LastSaved)
	require.Equal(t, t1, rec.ts)
}

func TestUnionNeverDeletes(t *testing.T) {
	store := seed(t, project("p1", "Acme"), project("p2", "Beta"))
	dir := &fakeDirectory{
		doc: &domain.Document{
			Projects:  []domain.Project{project("p2", "Beta"), project("p3", "Gamma")},
			LastSaved: t0,
		},
		lastSaved: t1,
	}
	r := New(store, dir, nil, WithClock(func() time.Time { return t2 }))

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Added)
	require.Equal(t, 2, report.Kept)
	require.Zero(t, report.Overwritten)

	require.Equal(t, []string{"p1", "p2", "p3"}, ids(store.List()))
	require.Equal(t, []string{"p1", "p2", "p3"}, ids(dir.doc.Projects))
	require.Equal(t, t2, report.LastSaved)
}

func TestDisjointFileKeepsLocalRecords(t *testing.T) {
	store := seed(t, project("p1", "Acme"))
	dir := &fakeDirectory{
		doc:       &domain.Document{Projects: []domain.Project{project("p9", "Zeta")}, LastSaved: t2},
		lastSaved: t0,
	}
	_, err := New(store, dir, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p9"}, ids(store.List()))
}

func TestNewerFileWinsWholesale(t *testing.T) {
	local := project("p1", "Old name")
	local.Address = "1 Rd"
	store := seed(t, local)

	remote := project("p1", "New name")
	dir := &fakeDirectory{
		doc:       &domain.Document{Projects: []domain.Project{remote}, LastSaved: t2},
		lastSaved: t1,
	}
	report, err := New(store, dir, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Overwritten)

	got, ok := store.Get("p1")
	require.True(t, ok)
	require.Equal(t, "New name", got.Name)
	require.Empty(t, got.Address, "record-level replacement, not a field merge")
}

func TestOlderFileDoesNotOverwrite(t *testing.T) {
	store := seed(t, project("p1", "Local"))
	dir := &fakeDirectory{
		doc:       &domain.Document{Projects: []domain.Project{project("p1", "Stale")}, LastSaved: t0},
		lastSaved: t1,
	}
	report, err := New(store, dir, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Kept)

	got, _ := store.Get("p1")
	require.Equal(t, "Local", got.Name)
	require.Equal(t, "Local", dir.doc.Projects[0].Name)
}

func TestEqualTimestampsKeepLocalCopy(t *testing.T) {
	store := seed(t, project("p1", "Local"))
	dir := &fakeDirectory{
		doc:       &domain.Document{Projects: []domain.Project{project("p1", "Remote")}, LastSaved: t1},
		lastSaved: t1,
	}
	_, err := New(store, dir, nil).Run(context.Background())
	require.NoError(t, err)
	got, _ := store.Get("p1")
	require.Equal(t, "Local", got.Name)
}

func TestSyncChangesAreTaggedWithSyncOrigin(t *testing.T) {
	store := seed(t, project("p1", "Acme"))
	var origins []domain.Origin
	unsubscribe := store.Subscribe(func(evt domain.Event) { origins = append(origins, evt.Origin) })
	defer unsubscribe()

	dir := &fakeDirectory{
		doc: &domain.Document{
			Projects:  []domain.Project{project("p2", "Beta")},
			Users:     []domain.User{{ID: "u1", Name: "Ann", Email: "ann@example.com", Role: domain.RoleWorker}},
			AuditLogs: []domain.AuditLogEntry{{ID: "a1", ActorID: "u1", ActorName: "Ann", Action: domain.AuditCreateProject, Timestamp: 1}},
			LastSaved: t1,
		},
	}
	_, err := New(store, dir, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []domain.Origin{domain.OriginSync}, origins)
	require.Len(t, store.ListUsers(), 1)
	require.Len(t, store.ListAudit(), 1)
}

func TestReadFailureLeavesStoreUntouched(t *testing.T) {
	store := seed(t, project("p1", "Acme"))
	dir := &fakeDirectory{readErr: errors.New("disk gone")}
	_, err := New(store, dir, nil).Run(context.Background())
	require.Error(t, err)
	require.Zero(t, dir.writes)
	require.Len(t, store.List(), 1)
}

func TestWriteBackFailureIsReported(t *testing.T) {
	store := seed(t, project("p1", "Acme"))
	dir := &fakeDirectory{
		doc:      &domain.Document{Projects: []domain.Project{project("p2", "Beta")}, LastSaved: t0},
		writeErr: errors.New("revoked"),
	}
	report, err := New(store, dir, nil).Run(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, report.Added)
	require.Len(t, store.List(), 2, "merged records stay in memory even when write-back fails")
}

func TestInvalidFileRecordsAreSkipped(t *testing.T) {
	store := seed(t)
	bad := project("p1", "Bad")
	bad.Progress = 150
	dir := &fakeDirectory{
		doc: &domain.Document{Projects: []domain.Project{bad, project("p2", "Good")}, LastSaved: t0},
	}
	report, err := New(store, dir, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, 1, report.Added)
	require.Equal(t, []string{"p2"}, ids(store.List()))
}
