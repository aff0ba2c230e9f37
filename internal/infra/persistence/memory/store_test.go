package memory

import (
	"context"
	"errors"
	"testing"

	"worksite/pkg/domain"
)

func TestStoreUpsertReplacesInPlace(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	if err := store.Upsert(ctx, Project{ID: "p1", Name: "Acme", Address: "1 Rd"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.Upsert(ctx, Project{ID: "p1", Name: "Acme", Address: "2 Rd"}); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	list := store.List()
	if len(list) != 1 || list[0].Address != "2 Rd" {
		t.Fatalf("expected single replaced record, got %+v", list)
	}
	if list[0].Type != domain.ClassConstruction || list[0].Status != domain.StatusPlanning {
		t.Fatalf("expected defaults to be applied, got %s %s", list[0].Type, list[0].Status)
	}
}

func TestStoreRejectsMissingID(t *testing.T) {
	store := NewStore()
	var events int
	store.Subscribe(func(Event) { events++ })

	err := store.Upsert(context.Background(), Project{Name: "nameless"})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(store.List()) != 0 || events != 0 {
		t.Fatalf("expected no mutation on invalid input")
	}
}

func TestStoreUpsertAllIsAtomic(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	err := store.UpsertAll(ctx, []Project{{ID: "a"}, {ID: ""}, {ID: "c"}})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if len(store.List()) != 0 {
		t.Fatalf("expected no partial writes")
	}

	var got []Event
	store.Subscribe(func(evt Event) { got = append(got, evt) })
	if err := store.UpsertAll(domain.WithOrigin(ctx, domain.OriginImport), []Project{{ID: "a"}, {ID: "b"}}); err != nil {
		t.Fatalf("upsert all: %v", err)
	}
	if len(got) != 1 || len(got[0].Changes) != 2 || got[0].Origin != domain.OriginImport {
		t.Fatalf("expected one import event with two changes, got %+v", got)
	}
}

func TestStoreListIsCanonicallyOrdered(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	for _, p := range []Project{
		{ID: "late"},
		{ID: "report", ReportDate: "2024-02-01"},
		{ID: "appt", AppointmentDate: "2024-01-01"},
	} {
		if err := store.Upsert(ctx, p); err != nil {
			t.Fatalf("upsert %s: %v", p.ID, err)
		}
	}
	list := store.List()
	if list[0].ID != "appt" || list[1].ID != "report" || list[2].ID != "late" {
		t.Fatalf("unexpected order: %s %s %s", list[0].ID, list[1].ID, list[2].ID)
	}
}

func TestStoreRemoveIsPermanent(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	_ = store.Upsert(ctx, Project{ID: "p1"})

	removed, err := store.Remove(ctx, "p1")
	if err != nil || !removed {
		t.Fatalf("expected removal, got %v %v", removed, err)
	}
	removed, err = store.Remove(ctx, "p1")
	if err != nil || removed {
		t.Fatalf("expected second removal to report false, got %v %v", removed, err)
	}
	if _, ok := store.Get("p1"); ok {
		t.Fatalf("expected record to be gone")
	}
}

func TestStoreCopiesOwnedCollections(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	p := Project{ID: "p1", Milestones: []domain.Milestone{{ID: "m1", Title: "pour"}}}
	_ = store.Upsert(ctx, p)
	p.Milestones[0].Title = "changed by caller"

	got, _ := store.Get("p1")
	if got.Milestones[0].Title != "pour" {
		t.Fatalf("store aliases caller slice")
	}
	got.Milestones[0].Title = "changed by reader"
	again, _ := store.Get("p1")
	if again.Milestones[0].Title != "pour" {
		t.Fatalf("store leaks internal slice")
	}
}

func TestStoreNaturalKeyLookups(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	_ = store.UpsertAll(ctx, []Project{
		{ID: "p1", Name: "Acme", Address: "1 Rd"},
		{ID: "p2", Name: "Acme", Address: "9 Rd"},
		{ID: "p3", Name: "Beta", Address: "2 Rd"},
	})
	if p, ok := store.FindByNaturalKey("Acme", "9 Rd"); !ok || p.ID != "p2" {
		t.Fatalf("expected p2, got %+v %v", p, ok)
	}
	if _, ok := store.FindByNaturalKey("Acme", "3 Rd"); ok {
		t.Fatalf("expected miss for unknown address")
	}
	if n := len(store.FindByName("Acme")); n != 2 {
		t.Fatalf("expected two by name, got %d", n)
	}
	if n := len(store.ListByType(domain.ClassConstruction)); n != 3 {
		t.Fatalf("expected construction default, got %d", n)
	}
}

func TestStoreUsersAndAudit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	if err := store.UpsertUser(ctx, User{ID: "u1", Email: "lin@example.com"}); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	if u, ok := store.FindUserByEmail("lin@example.com"); !ok || u.ID != "u1" {
		t.Fatalf("expected user lookup")
	}
	_ = store.AppendAudit(ctx, AuditLogEntry{ID: "a1", Action: domain.AuditCreateProject, Timestamp: 1})
	_ = store.AppendAudit(ctx, AuditLogEntry{ID: "a2", Action: domain.AuditDeleteProject, Timestamp: 2})
	_ = store.AppendAudit(ctx, AuditLogEntry{ID: "a1", Action: "rewritten", Timestamp: 3})

	logs := store.ListAudit()
	if len(logs) != 2 || logs[0].ID != "a2" || logs[1].Action != domain.AuditCreateProject {
		t.Fatalf("expected immutable newest-first audit log, got %+v", logs)
	}
	if removed, _ := store.RemoveUser(ctx, "u1"); !removed {
		t.Fatalf("expected user removal")
	}
}

func TestStoreSubscribeDeliversAfterCommit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	var seen []string
	unsubscribe := store.Subscribe(func(evt Event) {
		// the lock is released, so reads inside the callback must not block
		for _, p := range store.List() {
			seen = append(seen, p.ID)
		}
	})
	_ = store.Upsert(ctx, Project{ID: "p1"})
	unsubscribe()
	_ = store.Upsert(ctx, Project{ID: "p2"})
	if len(seen) != 1 || seen[0] != "p1" {
		t.Fatalf("unexpected deliveries: %v", seen)
	}
}

func TestStoreExportImportState(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	_ = store.Upsert(ctx, Project{ID: "p1", Name: "Acme"})
	_ = store.AppendAudit(ctx, AuditLogEntry{ID: "a1", Timestamp: 5})

	snapshot := store.ExportState()
	store.ImportState(Snapshot{})
	if len(store.List()) != 0 {
		t.Fatalf("expected cleared state")
	}
	store.ImportState(snapshot)
	if len(store.List()) != 1 || len(store.ListAudit()) != 1 {
		t.Fatalf("expected restored state")
	}

	var evt Event
	store.Subscribe(func(e Event) { evt = e })
	store.ReplaceState(domain.WithOrigin(ctx, domain.OriginRestore), SnapshotFromLists([]Project{{ID: "p2"}}, nil, nil))
	if evt.Origin != domain.OriginRestore || !evt.Touches(domain.EntityProject) {
		t.Fatalf("expected restore event, got %+v", evt)
	}
	if _, ok := store.Get("p1"); ok {
		t.Fatalf("replace should drop records absent from the snapshot")
	}
}
