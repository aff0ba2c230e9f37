package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestSortProjectsPlacesDatelessLast(t *testing.T) {
	projects := []Project{
		{ID: "z", Name: "no dates"},
		{ID: "b", ReportDate: "2024-03-01"},
		{ID: "a", AppointmentDate: "2024-05-01", ReportDate: "2023-01-01"},
		{ID: "c", AppointmentDate: "2024-01-15"},
		{ID: "y", Name: "also no dates"},
	}
	SortProjects(projects)

	want := []string{"c", "b", "a", "y", "z"}
	for i, id := range want {
		if projects[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, projects[i].ID)
		}
	}
	for _, p := range projects[:3] {
		if SortKey(p) == FarFuture {
			t.Fatalf("dated project %s sorted as dateless", p.ID)
		}
	}
}

func TestSortProjectsTieBreaksByID(t *testing.T) {
	projects := []Project{
		{ID: "p3", AppointmentDate: "2024-02-02"},
		{ID: "p1", ReportDate: "2024-02-02"},
		{ID: "p2", AppointmentDate: "2024-02-02"},
	}
	SortProjects(projects)
	for i, id := range []string{"p1", "p2", "p3"} {
		if projects[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, projects[i].ID)
		}
	}
}

func TestNextStatusCycles(t *testing.T) {
	status := StatusPlanning
	seen := []ProjectStatus{status}
	for i := 0; i < len(StatusCycle); i++ {
		status = NextStatus(status)
		seen = append(seen, status)
	}
	want := []ProjectStatus{StatusPlanning, StatusInProgress, StatusCompleted, StatusOnHold, StatusPlanning}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("step %d: expected %s, got %s", i, want[i], seen[i])
		}
	}
	if NextStatus("unknown") != StatusPlanning {
		t.Fatalf("expected unknown status to restart the cycle")
	}
}

func TestRecomputeProgress(t *testing.T) {
	cases := []struct {
		milestones []Milestone
		want       int
	}{
		{nil, 0},
		{[]Milestone{{Completed: true}}, 100},
		{[]Milestone{{Completed: true}, {}, {}}, 33},
		{[]Milestone{{Completed: true}, {Completed: true}, {}}, 67},
	}
	for i, tc := range cases {
		if got := RecomputeProgress(tc.milestones); got != tc.want {
			t.Fatalf("case %d: expected %d, got %d", i, tc.want, got)
		}
	}
}

func TestMergeAttachmentsDeduplicatesByNameAndSize(t *testing.T) {
	existing := []Attachment{{ID: "a1", Name: "plan.pdf", Size: 10}}
	incoming := []Attachment{
		{ID: "a2", Name: "plan.pdf", Size: 10},
		{ID: "a3", Name: "plan.pdf", Size: 11},
		{ID: "a4", Name: "plan.pdf", Size: 11},
	}
	merged, added := MergeAttachments(existing, incoming)
	if added != 1 || len(merged) != 2 {
		t.Fatalf("expected one new attachment, got added=%d merged=%d", added, len(merged))
	}
	if merged[0].ID != "a1" || merged[1].ID != "a3" {
		t.Fatalf("unexpected merge order: %+v", merged)
	}
}

func TestDuplicateIssuesFreshIDsAndResets(t *testing.T) {
	src := Normalize(Project{
		ID:              "p1",
		Name:            "Acme",
		Status:          StatusCompleted,
		Progress:        100,
		AppointmentDate: "2024-01-01",
		Remarks:         "done",
		Milestones:      []Milestone{{ID: "m1", Completed: true}},
		Materials:       []Material{{ID: "mat1", Status: MaterialDelivered}},
		Attachments:     []Attachment{{ID: "a1", Name: "x", Size: 1}},
		Reports:         []DailyReport{{ID: "r1"}},
		Photos:          []SitePhoto{{ID: "ph1"}},
	})
	n := 0
	newID := func() string { n++; return fmt.Sprintf("new-%d", n) }

	dup := Duplicate(src, newID)
	if dup.ID == src.ID || dup.Name != "Acme"+DuplicateSuffix {
		t.Fatalf("unexpected identity: %s %q", dup.ID, dup.Name)
	}
	if dup.Status != StatusPlanning || dup.Progress != 0 || dup.AppointmentDate != "" || dup.Remarks != "" {
		t.Fatalf("expected reset workflow fields: %+v", dup)
	}
	if dup.Milestones[0].ID == "m1" || dup.Milestones[0].Completed {
		t.Fatalf("milestone not reissued: %+v", dup.Milestones[0])
	}
	if dup.Materials[0].Status != MaterialPending || dup.Attachments[0].ID == "a1" {
		t.Fatalf("owned entries not reissued")
	}
	if len(dup.Reports) != 0 || len(dup.Photos) != 0 {
		t.Fatalf("expected per-visit logs to be cleared")
	}
	if src.Milestones[0].ID != "m1" || !src.Milestones[0].Completed {
		t.Fatalf("source project mutated")
	}
}

func TestCloneProjectSharesNoBackingArrays(t *testing.T) {
	src := Project{ID: "p", Reports: []DailyReport{{ID: "r", Photos: []string{"a"}}}}
	cp := CloneProject(src)
	cp.Reports[0].Photos[0] = "b"
	if src.Reports[0].Photos[0] != "a" {
		t.Fatalf("clone aliases report photos")
	}
	if cp.Milestones == nil || cp.Attachments == nil {
		t.Fatalf("clone should normalise nil collections")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name  string
		p     Project
		field string
	}{
		{"missing id", Project{Name: "x"}, "id"},
		{"progress", Project{ID: "p", Progress: 101}, "progress"},
		{"type", Project{ID: "p", Type: "shed"}, "type"},
		{"date", Project{ID: "p", AppointmentDate: "2024/01/01"}, "appointmentDate"},
		{"report date", Project{ID: "p", ReportDate: "01/02/2024"}, "reportDate"},
	}
	for _, tc := range cases {
		err := Validate(tc.p)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.name, err)
		}
		if verr.Field != tc.field {
			t.Fatalf("%s: expected field %s, got %s", tc.name, tc.field, verr.Field)
		}
	}
	if err := Validate(Project{ID: "ok", AppointmentDate: "2024-02-29"}); err != nil {
		t.Fatalf("expected valid project, got %v", err)
	}
}

func TestContextCarriesActorAndOrigin(t *testing.T) {
	ctx := context.Background()
	if _, ok := ActorFromContext(ctx); ok {
		t.Fatalf("expected no actor")
	}
	if OriginFromContext(ctx) != OriginLocal {
		t.Fatalf("expected local origin by default")
	}
	ctx = WithOrigin(WithActor(ctx, Actor{ID: "u1", Name: "Lin"}), OriginImport)
	if a, ok := ActorFromContext(ctx); !ok || a.Name != "Lin" {
		t.Fatalf("unexpected actor %+v", a)
	}
	if OriginFromContext(ctx) != OriginImport {
		t.Fatalf("expected import origin")
	}
}
