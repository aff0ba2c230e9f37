package importer

import (
	"fmt"
	"strings"
)

// Field is a semantic spreadsheet column.
type Field string

// Recognised fields. Customer is the only required one.
const (
	FieldCategory    Field = "category"
	FieldCustomer    Field = "customer"
	FieldContact     Field = "contact"
	FieldPhone       Field = "phone"
	FieldAddress     Field = "address"
	FieldDescription Field = "description"
	FieldAppointment Field = "appointmentDate"
	FieldReport      Field = "reportDate"
	FieldRemarks     Field = "remarks"
)

// Fields lists every field in mapping order.
var Fields = []Field{
	FieldCategory, FieldCustomer, FieldContact, FieldPhone, FieldAddress,
	FieldDescription, FieldAppointment, FieldReport, FieldRemarks,
}

// Keywords maps each field to the header fragments that identify it.
// Matching is a case-sensitive substring test.
var Keywords = map[Field][]string{
	FieldCategory:    {"類別", "Category"},
	FieldCustomer:    {"客戶", "Customer"},
	FieldContact:     {"聯絡人", "Contact"},
	FieldPhone:       {"電話", "Phone"},
	FieldAddress:     {"地址", "Address"},
	FieldDescription: {"工程", "Description"},
	FieldAppointment: {"預約日期", "Appointment"},
	FieldReport:      {"報修日期", "Report Date"},
	FieldRemarks:     {"備註", "Remarks"},
}

func isDateField(f Field) bool { return f == FieldAppointment || f == FieldReport }

// DefaultHeaderScanRows bounds how far DetectHeader looks.
const DefaultHeaderScanRows = 20

// DetectHeader returns the index of the first row within the first scanRows
// rows that holds a customer column label.
func DetectHeader(rows [][]Cell, scanRows int) (int, error) {
	if scanRows <= 0 {
		scanRows = DefaultHeaderScanRows
	}
	for i := 0; i < len(rows) && i < scanRows; i++ {
		for _, cell := range rows[i] {
			if matchesAny(cell.Text, Keywords[FieldCustomer]) {
				return i, nil
			}
		}
	}
	return -1, fmt.Errorf("%w: no %s column in the first %d rows", ErrHeaderNotFound, FieldCustomer, scanRows)
}

// ColumnMap resolves fields to zero-based column indexes.
type ColumnMap map[Field]int

// Index returns the column for f, or -1 when it is unmapped.
func (m ColumnMap) Index(f Field) int {
	if idx, ok := m[f]; ok {
		return idx
	}
	return -1
}

// MapColumns assigns each field the first header cell containing one of its
// keywords.
func MapColumns(header []Cell) (ColumnMap, error) {
	cols := ColumnMap{}
	for _, field := range Fields {
		for idx, cell := range header {
			if matchesAny(strings.TrimSpace(cell.Text), Keywords[field]) {
				cols[field] = idx
				break
			}
		}
	}
	if _, ok := cols[FieldCustomer]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrRequiredColumnMissing, FieldCustomer)
	}
	return cols, nil
}

func matchesAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
