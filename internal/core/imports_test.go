package core_test

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"worksite/pkg/domain"
)

func scheduleWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	rows := [][]any{
		{"類別", "客戶", "地址"},
		{"維修", "Acme", "1 Rd"},
		{"", "Beta", "2 Rd"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		values := row
		if err := f.SetSheetRow("Sheet1", cell, &values); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestImportAuditSharesTheImportTransaction(t *testing.T) {
	svc := newFixture().open(t)
	var events []domain.Event
	unsubscribe := svc.Subscribe(func(e domain.Event) { events = append(events, e) })
	defer unsubscribe()

	book := scheduleWorkbook(t)
	summary, err := svc.ImportWorkbook(actorCtx(), bytes.NewReader(book))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if summary.Added != 2 {
		t.Fatalf("expected 2 added, got %d", summary.Added)
	}
	if len(events) != 1 {
		t.Fatalf("expected one event for the import, got %d", len(events))
	}
	if events[0].Origin != domain.OriginImport {
		t.Fatalf("expected import origin, got %q", events[0].Origin)
	}
	audits := svc.AuditLog()
	if len(audits) != 1 || audits[0].Action != domain.AuditImportExcel {
		t.Fatalf("expected a single %s entry, got %+v", domain.AuditImportExcel, audits)
	}
	if audits[0].Details != "Imported 2 projects with 0 photos" {
		t.Fatalf("unexpected audit details %q", audits[0].Details)
	}

	// An unchanged re-import commits nothing.
	summary, err = svc.ImportWorkbook(actorCtx(), bytes.NewReader(book))
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if summary.Unchanged != 2 || summary.Added+summary.Updated != 0 {
		t.Fatalf("expected 2 unchanged, got %+v", summary)
	}
	if len(events) != 1 {
		t.Fatalf("expected no event for an unchanged import, got %d", len(events))
	}
	if n := len(svc.AuditLog()); n != 1 {
		t.Fatalf("expected no new audit entry, got %d entries", n)
	}
	if svc.LastImportDate() == "" {
		t.Fatal("expected last import date to be recorded")
	}
}
