package importer

import (
	"reflect"
	"strings"

	"worksite/pkg/domain"
)

// MergeResult lists the records an import changes and how each row landed.
type MergeResult struct {
	// Projects holds every new or changed record in sheet order.
	Projects          []domain.Project
	Added             int
	Updated           int
	Unchanged         int
	SkippedDuplicates int
	Photos            int
}

// Merge resolves each row against view by natural key and folds the row into
// the matching record, or into a new one.
//
// The natural key is the exact (name, address) pair. Rows are bound in two
// passes: exact pairs first, then rows without an exact match fall back to the
// only record carrying their name, provided no other row already claimed it.
// A changed address therefore updates the record, while a sheet that lists an
// existing site next to a new address of the same name keeps both. Rows with
// a pair already seen in the sheet count as duplicates.
func Merge(view domain.TransactionView, rows []Row, newID func() string, nowMillis int64) MergeResult {
	var res MergeResult

	kept := make([]Row, 0, len(rows))
	seenKeys := map[string]struct{}{}
	for _, row := range rows {
		key := row.Get(FieldCustomer) + "\x00" + row.Get(FieldAddress)
		if _, dup := seenKeys[key]; dup {
			res.SkippedDuplicates++
			continue
		}
		seenKeys[key] = struct{}{}
		kept = append(kept, row)
	}

	bound := make([]*domain.Project, len(kept))
	claimed := map[string]struct{}{}
	for i, row := range kept {
		if p, ok := view.FindProjectByNaturalKey(row.Get(FieldCustomer), row.Get(FieldAddress)); ok {
			if _, taken := claimed[p.ID]; !taken {
				claimed[p.ID] = struct{}{}
				bound[i] = &p
			}
		}
	}
	for i, row := range kept {
		if bound[i] != nil {
			continue
		}
		candidates := view.FindProjectsByName(row.Get(FieldCustomer))
		if len(candidates) != 1 {
			continue
		}
		if _, taken := claimed[candidates[0].ID]; taken {
			continue
		}
		claimed[candidates[0].ID] = struct{}{}
		bound[i] = &candidates[0]
	}

	for i, row := range kept {
		name := row.Get(FieldCustomer)
		var p, before domain.Project
		existed := bound[i] != nil
		if existed {
			before = *bound[i]
			p = domain.CloneProject(before)
		} else {
			p = domain.NewProject(newID(), name, Classify(row.Get(FieldCategory)))
			res.Added++
		}
		applyRow(&p, row)
		if row.Image != nil {
			photo, att := photoAndAttachment(row, name, newID, nowMillis)
			var added int
			p.Attachments, added = domain.MergeAttachments(p.Attachments, []domain.Attachment{att})
			if added > 0 {
				p.Photos = append(p.Photos, photo)
				res.Photos++
			}
		}
		if existed {
			if reflect.DeepEqual(before, p) {
				res.Unchanged++
				continue
			}
			res.Updated++
		}
		res.Projects = append(res.Projects, p)
	}
	return res
}

// applyRow overwrites record fields with every non-empty sheet value.
func applyRow(p *domain.Project, row Row) {
	set := func(dst *string, f Field) {
		if v := row.Get(f); v != "" {
			*dst = v
		}
	}
	if customer := row.Get(FieldCustomer); customer != "" {
		client, _, _ := strings.Cut(customer, "-")
		p.ClientName = strings.TrimSpace(client)
	}
	set(&p.ClientContact, FieldContact)
	set(&p.ClientPhone, FieldPhone)
	set(&p.Address, FieldAddress)
	set(&p.Description, FieldDescription)
	set(&p.AppointmentDate, FieldAppointment)
	set(&p.ReportDate, FieldReport)
	set(&p.Remarks, FieldRemarks)
	if category := row.Get(FieldCategory); category != "" {
		p.Type = Classify(category)
	}
}
