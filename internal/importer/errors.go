package importer

import (
	"errors"
	"fmt"
)

var (
	// ErrHeaderNotFound aborts an import whose header row cannot be located.
	ErrHeaderNotFound = errors.New("import: header row not found")
	// ErrRequiredColumnMissing aborts an import without a customer column.
	ErrRequiredColumnMissing = errors.New("import: required column missing")
	// ErrUnreadableWorkbook aborts an import whose document cannot be decoded.
	ErrUnreadableWorkbook = errors.New("import: unreadable workbook")
)

// RowCoercionWarning describes a cell that could not be used. A warning on the
// customer cell skips the row; other warnings only blank the field.
type RowCoercionWarning struct {
	Row    int // 1-based sheet row
	Field  Field
	Value  string
	Reason string
}

func (w *RowCoercionWarning) Error() string {
	return fmt.Sprintf("row %d %s %q: %s", w.Row, w.Field, w.Value, w.Reason)
}
