package spreadsheet

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Workbook is a full in-memory copy of an uploaded workbook that has been
// checked against a Schema. Edits apply to the copy only.
type Workbook struct {
	book    *excelize.File
	sheet   string
	rows    [][]string
	codeCol int
	descCol int
}

// Open reads every column of the workbook and verifies the layout. A layout
// problem is reported as *SchemaMismatchError.
func Open(r io.Reader, schema *Schema) (*Workbook, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	sheet, err := pickSheet(book, schema)
	if err != nil {
		book.Close()
		return nil, &SchemaMismatchError{Version: schema.Version, Problems: []string{err.Error()}}
	}
	rows, err := book.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		book.Close()
		return nil, fmt.Errorf("read rows: %w", err)
	}
	var header []string
	if len(rows) > 0 {
		header = rows[0]
	}
	if err := schema.check(header, rows); err != nil {
		book.Close()
		return nil, err
	}
	index := headerIndex(header)
	code, _ := schema.Column(FieldProductCode)
	desc, _ := schema.Column(FieldDescription)
	return &Workbook{
		book:    book,
		sheet:   sheet,
		rows:    rows,
		codeCol: index[code.Name],
		descCol: index[desc.Name],
	}, nil
}

func (s *Schema) check(header []string, rows [][]string) error {
	var problems []string
	if s.Strict {
		if len(header) != len(s.Columns) {
			problems = append(problems, fmt.Sprintf("expected %d columns, found %d", len(s.Columns), len(header)))
		}
		for i, c := range s.Columns {
			if i < len(header) && strings.TrimSpace(header[i]) != c.Name {
				problems = append(problems, fmt.Sprintf("column %d: expected %q, found %q", i+1, c.Name, strings.TrimSpace(header[i])))
			}
		}
	}
	index := headerIndex(header)
	for _, c := range s.Columns {
		i, ok := index[c.Name]
		if !ok {
			if !c.Optional {
				problems = append(problems, fmt.Sprintf("missing column %q", c.Name))
			}
			continue
		}
		if c.Type != TypeInteger {
			continue
		}
		for r := 1; r < len(rows); r++ {
			if v := cellAt(rows[r], i); v != "" && !isInteger(v) {
				problems = append(problems, fmt.Sprintf("column %q row %d: %q is not an integer", c.Name, r+1, v))
				break
			}
		}
	}
	if len(problems) > 0 {
		return &SchemaMismatchError{Version: s.Version, Problems: problems}
	}
	return nil
}

// ReplaceDescriptions overwrites the description cell of every row whose
// product code is a key of byCode. It returns the number of cells written.
func (w *Workbook) ReplaceDescriptions(byCode map[string]string) (int, error) {
	written := 0
	for r := 1; r < len(w.rows); r++ {
		desc, ok := byCode[cellAt(w.rows[r], w.codeCol)]
		if !ok {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(w.descCol+1, r+1)
		if err != nil {
			return written, err
		}
		if err := w.book.SetCellStr(w.sheet, cell, desc); err != nil {
			return written, fmt.Errorf("set %s: %w", cell, err)
		}
		written++
	}
	return written, nil
}

// Bytes serialises the workbook.
func (w *Workbook) Bytes() ([]byte, error) {
	buf, err := w.book.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (w *Workbook) Close() error {
	return w.book.Close()
}

// Write builds a single-sheet workbook from a header and string rows. It
// produces the blank templates handed out to operators.
func Write(sheet string, header []string, rows [][]string) ([]byte, error) {
	book := excelize.NewFile()
	defer book.Close()
	if sheet == "" {
		sheet = "Sheet1"
	}
	if first := book.GetSheetName(0); first != sheet {
		if err := book.SetSheetName(first, sheet); err != nil {
			return nil, fmt.Errorf("rename sheet: %w", err)
		}
	}
	all := append([][]string{header}, rows...)
	for i, r := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		vals := make([]interface{}, len(r))
		for j, v := range r {
			vals[j] = v
		}
		if err := book.SetSheetRow(sheet, cell, &vals); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	buf, err := book.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func isInteger(v string) bool {
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return true
	}
	f, err := strconv.ParseFloat(v, 64)
	return err == nil && f == math.Trunc(f)
}
