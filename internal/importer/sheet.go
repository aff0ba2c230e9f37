package importer

import (
	"fmt"
	"io"
	"mime"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// CellKind tells coercion how a cell was stored.
type CellKind int

// Cell kinds.
const (
	KindEmpty CellKind = iota
	KindString
	KindNumber
	KindDate
	KindBool
)

// Cell is one worksheet value with its native kind.
type Cell struct {
	Kind   CellKind
	Text   string
	Number float64
	Time   time.Time
}

// StringCell builds a text cell.
func StringCell(s string) Cell { return Cell{Kind: KindString, Text: s} }

// NumberCell builds a numeric cell.
func NumberCell(n float64) Cell {
	return Cell{Kind: KindNumber, Number: n, Text: strconv.FormatFloat(n, 'f', -1, 64)}
}

// DateCell builds a native date cell.
func DateCell(t time.Time) Cell { return Cell{Kind: KindDate, Time: t, Text: t.Format(time.RFC3339)} }

func emptyCell() Cell { return Cell{Kind: KindEmpty} }

func (c Cell) isEmpty() bool { return c.Kind == KindEmpty || strings.TrimSpace(c.Text) == "" }

func (c Cell) trimmed() string { return strings.TrimSpace(c.Text) }

// Image is an embedded picture anchored to a zero-based sheet row.
type Image struct {
	Row       int
	Extension string // with leading dot, e.g. ".png"
	Data      []byte
}

// ContentType returns the MIME type implied by the extension.
func (i Image) ContentType() string {
	if ct := mime.TypeByExtension(strings.ToLower(i.Extension)); ct != "" {
		return ct
	}
	return "image/jpeg"
}

// Sheet is the first worksheet of a workbook reduced to cells and images.
// Images keeps the first picture anchored to each row.
type Sheet struct {
	Name   string
	Rows   [][]Cell
	Images map[int]Image
}

// ReadWorkbook decodes the first worksheet of an xlsx document.
func ReadWorkbook(r io.Reader) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: no worksheet", ErrUnreadableWorkbook)
	}
	name := sheets[0]
	raw, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
	}
	sheet := &Sheet{Name: name, Rows: make([][]Cell, len(raw)), Images: map[int]Image{}}
	for r, values := range raw {
		row := make([]Cell, len(values))
		for c, value := range values {
			row[c] = readCell(f, name, r, c, value)
		}
		sheet.Rows[r] = row
	}

	cells, err := f.GetPictureCells(name)
	if err != nil {
		return nil, fmt.Errorf("%w: pictures: %v", ErrUnreadableWorkbook, err)
	}
	for _, ref := range cells {
		_, rowNum, err := excelize.CellNameToCoordinates(ref)
		if err != nil {
			continue
		}
		pics, err := f.GetPictures(name, ref)
		if err != nil || len(pics) == 0 {
			continue
		}
		row := rowNum - 1
		if _, taken := sheet.Images[row]; taken {
			continue
		}
		sheet.Images[row] = Image{Row: row, Extension: pics[0].Extension, Data: pics[0].File}
	}
	return sheet, nil
}

func readCell(f *excelize.File, sheet string, r, c int, value string) Cell {
	if strings.TrimSpace(value) == "" {
		return emptyCell()
	}
	ref, err := excelize.CoordinatesToCellName(c+1, r+1)
	if err != nil {
		return StringCell(value)
	}
	kind, err := f.GetCellType(sheet, ref)
	if err != nil {
		return StringCell(value)
	}
	switch kind {
	case excelize.CellTypeBool:
		return Cell{Kind: KindBool, Text: value}
	case excelize.CellTypeDate:
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			return DateCell(t)
		}
		if t, err := time.Parse("2006-01-02T15:04:05", value); err == nil {
			return DateCell(t)
		}
		return StringCell(value)
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula:
		return StringCell(value)
	default:
		if n, err := strconv.ParseFloat(value, 64); err == nil {
			return NumberCell(n)
		}
		return StringCell(value)
	}
}
