package importer

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"worksite/pkg/domain"
)

// SerialDateFloor is the smallest number in a date column read as a
// spreadsheet day serial. 30000 is mid 1982.
const SerialDateFloor = 30000

var (
	isoLike = regexp.MustCompile(`^(\d{4})[/-](\d{1,2})[/-](\d{1,2})$`)
	usDate  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
)

// Row is one extracted data row.
type Row struct {
	// SourceRow is the zero-based sheet row the data came from.
	SourceRow int
	Values    map[Field]string
	Image     *Image
}

// Get returns the value of f, or "" when the column is unmapped or blank.
func (r Row) Get(f Field) string { return r.Values[f] }

// Extraction is the output of ExtractRows.
type Extraction struct {
	Rows     []Row
	Warnings []RowCoercionWarning
	// Skipped counts rows dropped for an unusable customer cell.
	Skipped int
}

// ExtractRows reads every data row below header. Blank rows are ignored.
func ExtractRows(rows [][]Cell, header int, cols ColumnMap) Extraction {
	var out Extraction
	for i := header + 1; i < len(rows); i++ {
		cells := rows[i]
		if rowIsBlank(cells) {
			continue
		}
		row := Row{SourceRow: i, Values: make(map[Field]string, len(cols))}
		for _, field := range Fields {
			idx := cols.Index(field)
			if idx < 0 || idx >= len(cells) {
				continue
			}
			value, warn := Coerce(cells[idx], isDateField(field))
			if warn != "" {
				out.Warnings = append(out.Warnings, RowCoercionWarning{Row: i + 1, Field: field, Value: cells[idx].Text, Reason: warn})
				continue
			}
			if value != "" {
				row.Values[field] = value
			}
		}
		if row.Get(FieldCustomer) == "" {
			out.Warnings = append(out.Warnings, RowCoercionWarning{Row: i + 1, Field: FieldCustomer, Reason: "customer is empty"})
			out.Skipped++
			continue
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

func rowIsBlank(cells []Cell) bool {
	for _, c := range cells {
		if !c.isEmpty() {
			return false
		}
	}
	return true
}

// Coerce converts a cell to its stored string form. Native dates and
// recognised date strings become YYYY-MM-DD; numbers above SerialDateFloor in
// date columns are read as day serials from 1899-12-30. A non-empty reason
// means the value could not be used.
func Coerce(c Cell, dateColumn bool) (string, string) {
	switch c.Kind {
	case KindEmpty:
		return "", ""
	case KindDate:
		return c.Time.Format(domain.DateLayout), ""
	case KindNumber:
		if dateColumn {
			if c.Number <= SerialDateFloor {
				return "", "number is not a date serial"
			}
			t, err := excelize.ExcelDateToTime(c.Number, false)
			if err != nil {
				return "", err.Error()
			}
			return t.Format(domain.DateLayout), ""
		}
		return strconv.FormatFloat(c.Number, 'f', -1, 64), ""
	}
	s := c.trimmed()
	if iso, ok, err := normaliseDateString(s); ok {
		if err != nil {
			return "", err.Error()
		}
		return iso, ""
	}
	if dateColumn && s != "" {
		return "", "unrecognised date"
	}
	return s, ""
}

// normaliseDateString reports whether s looks like a date and, if so, its
// zero-padded ISO form.
func normaliseDateString(s string) (string, bool, error) {
	var parts []string
	if g := isoLike.FindStringSubmatch(s); g != nil {
		parts = []string{g[1], g[2], g[3]}
	} else if g := usDate.FindStringSubmatch(s); g != nil {
		parts = []string{g[3], g[1], g[2]}
	} else {
		return "", false, nil
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", true, fmt.Errorf("invalid date %s", s)
		}
		nums[i] = n
	}
	iso := fmt.Sprintf("%04d-%02d-%02d", nums[0], nums[1], nums[2])
	if _, err := time.Parse(domain.DateLayout, iso); err != nil {
		return "", true, fmt.Errorf("invalid date %s", s)
	}
	return iso, true, nil
}

// Classify maps a category cell to a classification. Maintenance keywords take
// precedence over modular ones; anything else is general construction.
func Classify(category string) domain.Classification {
	switch {
	case matchesAny(category, maintenanceKeywords):
		return domain.ClassMaintenance
	case matchesAny(category, modularKeywords):
		return domain.ClassModularHouse
	default:
		return domain.ClassConstruction
	}
}

var (
	maintenanceKeywords = []string{"維修", "maintenance", "Maintenance"}
	modularKeywords     = []string{"組合屋", "modular", "Modular"}
)
