package spreadsheet

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Row is one product record read from a workbook. Line is the 1-based sheet
// row it came from.
type Row struct {
	Line        int
	ProductCode string
	Name        string
	Description string
}

// ReadProducts reads the product code, name and description columns of every
// non-blank row. Any problem with the workbook is reported as *FormatError.
func ReadProducts(r io.Reader, schema *Schema) ([]Row, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &FormatError{Reason: "cannot open workbook", Err: err}
	}
	defer book.Close()

	sheet, err := pickSheet(book, schema)
	if err != nil {
		return nil, &FormatError{Reason: err.Error()}
	}
	rows, err := book.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &FormatError{Reason: "cannot read rows", Err: err}
	}
	if len(rows) == 0 {
		return nil, &FormatError{Reason: "sheet " + sheet + " is empty"}
	}

	index := headerIndex(rows[0])
	cols := make(map[string]int, len(requiredFields))
	missing := false
	for _, field := range requiredFields {
		c, _ := schema.Column(field)
		i, ok := index[c.Name]
		if !ok {
			missing = true
			continue
		}
		cols[field] = i
	}
	if missing {
		return nil, &FormatError{Reason: fmt.Sprintf("check columns [%s]", strings.Join(schema.requiredNames(), ", "))}
	}

	out := make([]Row, 0, len(rows)-1)
	seen := make(map[string]int, len(rows)-1)
	for i, raw := range rows[1:] {
		line := i + 2
		if blank(raw) {
			continue
		}
		code := cellAt(raw, cols[FieldProductCode])
		if code == "" {
			return nil, &FormatError{Reason: fmt.Sprintf("row %d: empty product code", line)}
		}
		if prev, dup := seen[code]; dup {
			return nil, &FormatError{Reason: fmt.Sprintf("row %d: product code %q already used in row %d", line, code, prev)}
		}
		seen[code] = line
		desc := ""
		if j := cols[FieldDescription]; j < len(raw) {
			desc = raw[j]
		}
		out = append(out, Row{
			Line:        line,
			ProductCode: code,
			Name:        cellAt(raw, cols[FieldName]),
			Description: desc,
		})
	}
	return out, nil
}

func pickSheet(book *excelize.File, schema *Schema) (string, error) {
	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("workbook has no sheets")
	}
	if schema.Sheet == "" {
		return sheets[0], nil
	}
	for _, s := range sheets {
		if s == schema.Sheet {
			return s, nil
		}
	}
	return "", fmt.Errorf("sheet %q not found", schema.Sheet)
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, ok := index[name]; !ok && name != "" {
			index[name] = i
		}
	}
	return index
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
