package domain

import (
	"math"
	"sort"
	"time"
)

// FarFuture is the sort sentinel for projects without any calendar date.
const FarFuture = "9999-12-31"

// DateLayout is the canonical calendar date layout stored on projects.
const DateLayout = "2006-01-02"

// DuplicateSuffix is appended to the name of a duplicated project.
const DuplicateSuffix = " (複製)"

// SortKey returns the canonical ordering key of a project. Dates are zero
// padded ISO strings, so lexicographic order equals chronological order.
func SortKey(p Project) string {
	if p.AppointmentDate != "" {
		return p.AppointmentDate
	}
	if p.ReportDate != "" {
		return p.ReportDate
	}
	return FarFuture
}

// SortProjects orders projects in place by SortKey, breaking ties by id so the
// ordering is total.
func SortProjects(projects []Project) {
	sort.SliceStable(projects, func(i, j int) bool {
		ki, kj := SortKey(projects[i]), SortKey(projects[j])
		if ki != kj {
			return ki < kj
		}
		return projects[i].ID < projects[j].ID
	})
}

// NextStatus returns the status following current in StatusCycle. Unknown
// statuses restart the cycle.
func NextStatus(current ProjectStatus) ProjectStatus {
	for i, s := range StatusCycle {
		if s == current {
			return StatusCycle[(i+1)%len(StatusCycle)]
		}
	}
	return StatusCycle[0]
}

// RecomputeProgress derives progress from the completed milestone ratio.
func RecomputeProgress(milestones []Milestone) int {
	if len(milestones) == 0 {
		return 0
	}
	done := 0
	for _, m := range milestones {
		if m.Completed {
			done++
		}
	}
	return int(math.Round(float64(done) / float64(len(milestones)) * 100))
}

type attachmentKey struct {
	name string
	size int64
}

// MergeAttachments unions incoming into existing, skipping any attachment whose
// (Name, Size) pair is already present. Existing order is preserved.
func MergeAttachments(existing, incoming []Attachment) ([]Attachment, int) {
	seen := make(map[attachmentKey]struct{}, len(existing)+len(incoming))
	out := make([]Attachment, 0, len(existing)+len(incoming))
	for _, a := range existing {
		k := attachmentKey{a.Name, a.Size}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a)
	}
	added := 0
	for _, a := range incoming {
		k := attachmentKey{a.Name, a.Size}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a)
		added++
	}
	return out, added
}

// Duplicate returns a copy of p with fresh ids for every owned entry. Status,
// progress, dates, remarks and per-visit logs are reset.
func Duplicate(p Project, newID func() string) Project {
	cp := CloneProject(p)
	cp.ID = newID()
	cp.Name = p.Name + DuplicateSuffix
	cp.Status = StatusPlanning
	cp.Progress = 0
	cp.AppointmentDate = ""
	cp.ReportDate = ""
	cp.Remarks = ""
	for i := range cp.Milestones {
		cp.Milestones[i].ID = newID()
		cp.Milestones[i].Completed = false
	}
	for i := range cp.Materials {
		cp.Materials[i].ID = newID()
		cp.Materials[i].Status = MaterialPending
	}
	for i := range cp.Attachments {
		cp.Attachments[i].ID = newID()
	}
	cp.Photos = []SitePhoto{}
	cp.Reports = []DailyReport{}
	cp.ConstructionItems = []ConstructionItem{}
	cp.ConstructionSignatures = []ConstructionSignature{}
	cp.CompletionReports = []CompletionReport{}
	return cp
}

// NewProject returns a planning-state project with empty owned collections.
func NewProject(id, name string, class Classification) Project {
	p := Project{ID: id, Name: name, Type: class, Status: StatusPlanning}
	return Normalize(p)
}

// Normalize fills defaults for fields older documents may omit: an empty
// classification becomes construction, an empty status becomes planning and
// nil collections become empty ones.
func Normalize(p Project) Project {
	if p.Type == "" {
		p.Type = ClassConstruction
	}
	if p.Status == "" {
		p.Status = StatusPlanning
	}
	if p.Milestones == nil {
		p.Milestones = []Milestone{}
	}
	if p.Photos == nil {
		p.Photos = []SitePhoto{}
	}
	if p.Materials == nil {
		p.Materials = []Material{}
	}
	if p.Reports == nil {
		p.Reports = []DailyReport{}
	}
	if p.Attachments == nil {
		p.Attachments = []Attachment{}
	}
	if p.ConstructionItems == nil {
		p.ConstructionItems = []ConstructionItem{}
	}
	if p.ConstructionSignatures == nil {
		p.ConstructionSignatures = []ConstructionSignature{}
	}
	if p.CompletionReports == nil {
		p.CompletionReports = []CompletionReport{}
	}
	return p
}

// CloneProject deep copies every owned collection so the result shares no
// backing arrays with p.
func CloneProject(p Project) Project {
	cp := p
	cp.Milestones = append([]Milestone(nil), p.Milestones...)
	cp.Photos = append([]SitePhoto(nil), p.Photos...)
	cp.Materials = append([]Material(nil), p.Materials...)
	cp.Attachments = append([]Attachment(nil), p.Attachments...)
	cp.ConstructionItems = append([]ConstructionItem(nil), p.ConstructionItems...)
	cp.ConstructionSignatures = append([]ConstructionSignature(nil), p.ConstructionSignatures...)
	if p.Reports != nil {
		cp.Reports = make([]DailyReport, len(p.Reports))
		for i, r := range p.Reports {
			r.Photos = append([]string(nil), r.Photos...)
			cp.Reports[i] = r
		}
	}
	if p.CompletionReports != nil {
		cp.CompletionReports = make([]CompletionReport, len(p.CompletionReports))
		for i, r := range p.CompletionReports {
			r.Items = append([]CompletionItem(nil), r.Items...)
			cp.CompletionReports[i] = r
		}
	}
	return Normalize(cp)
}

// Validate rejects malformed projects before they reach any store.
func Validate(p Project) error {
	if p.ID == "" {
		return &ValidationError{Entity: EntityProject, Field: "id", Message: "id is required"}
	}
	if p.Progress < 0 || p.Progress > 100 {
		return &ValidationError{Entity: EntityProject, ID: p.ID, Field: "progress", Message: "progress must be within 0..100"}
	}
	if p.Type != "" && !p.Type.Valid() {
		return &ValidationError{Entity: EntityProject, ID: p.ID, Field: "type", Message: "unknown classification " + string(p.Type)}
	}
	if err := validateDate(p.ID, "appointmentDate", p.AppointmentDate); err != nil {
		return err
	}
	return validateDate(p.ID, "reportDate", p.ReportDate)
}

func validateDate(id, field, value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse(DateLayout, value); err != nil {
		return &ValidationError{Entity: EntityProject, ID: id, Field: field, Message: "date must be YYYY-MM-DD"}
	}
	return nil
}

// ValidateUser rejects users without an id.
func ValidateUser(u User) error {
	if u.ID == "" {
		return &ValidationError{Entity: EntityUser, Field: "id", Message: "id is required"}
	}
	return nil
}
