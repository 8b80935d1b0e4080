package spreadsheet

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testHeader = []string{"고객사상품코드", "상품명", "상품상세설명", "쇼핑몰판매가"}

func workbook(t *testing.T, header []string, rows ...[]string) []byte {
	t.Helper()
	data, err := Write("", header, rows)
	require.NoError(t, err)
	return data
}

func TestReadProducts(t *testing.T) {
	data := workbook(t, testHeader,
		[]string{"1001", "Mug", `<p>mug</p><img src="a.png">`, "12000"},
		[]string{"", "", "", ""},
		[]string{"1002", "Cup", "<p>cup</p>", "9000"},
	)

	rows, err := ReadProducts(bytes.NewReader(data), DefaultSchema())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{Line: 2, ProductCode: "1001", Name: "Mug", Description: `<p>mug</p><img src="a.png">`}, rows[0])
	assert.Equal(t, "1002", rows[1].ProductCode)
	assert.Equal(t, 4, rows[1].Line)
}

func TestReadProductsFormatErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"not a workbook", []byte("plain text")},
		{"missing column", workbook(t, []string{"고객사상품코드", "상품명"}, []string{"1", "x"})},
		{"empty code", workbook(t, testHeader, []string{"", "Mug", "<p/>", "1"})},
		{"duplicate code", workbook(t, testHeader, []string{"1", "a", "", "1"}, []string{"1", "b", "", "2"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadProducts(bytes.NewReader(tt.data), DefaultSchema())
			var fe *FormatError
			require.True(t, errors.As(err, &fe), "got %v", err)
		})
	}
}

func TestParseSchema(t *testing.T) {
	_, err := ParseSchema([]byte("version: 1\ncolumns:\n  - name: code\n    field: product_code\n"))
	assert.Error(t, err, "name and description are unbound")

	_, err = ParseSchema([]byte("version: 1\ncolumns:\n  - {name: a, field: product_code}\n  - {name: a, field: name}\n  - {name: c, field: description}\n"))
	assert.Error(t, err, "duplicate column")

	s, err := ParseSchema([]byte("version: 2\nstrict: true\ncolumns:\n  - {name: code, field: product_code}\n  - {name: title, field: name}\n  - {name: body, field: description, type: html}\n  - {name: price, type: integer}\n"))
	require.NoError(t, err)
	assert.Equal(t, TypeText, s.Columns[0].Type)
	c, ok := s.Column(FieldDescription)
	require.True(t, ok)
	assert.Equal(t, "body", c.Name)
	assert.Equal(t, []string{"code", "title", "body", "price"}, s.Header())

	_, err = ParseSchema([]byte("version: 1\ncolumns:\n  - {name: a, field: product_code, optional: true}\n  - {name: b, field: name}\n  - {name: c, field: description}\n"))
	assert.Error(t, err, "bound column marked optional")
}

func TestDefaultSchemaChecksPrices(t *testing.T) {
	schema := DefaultSchema()

	_, err := Open(bytes.NewReader(workbook(t, testHeader, []string{"1001", "Mug", "", "12000"})), schema)
	require.NoError(t, err)

	_, err = Open(bytes.NewReader(workbook(t, testHeader[:3], []string{"1001", "Mug", ""})), schema)
	require.NoError(t, err, "price columns may be absent")

	_, err = Open(bytes.NewReader(workbook(t, testHeader, []string{"1001", "Mug", "", "abc"})), schema)
	var sm *SchemaMismatchError
	require.True(t, errors.As(err, &sm), "got %v", err)
	assert.Equal(t, 1, sm.Version)
	assert.Contains(t, sm.Problems[0], "쇼핑몰판매가")
}

func TestTemplateRoundTrip(t *testing.T) {
	schema := DefaultSchema()
	data, err := Write(schema.Sheet, schema.Header(), nil)
	require.NoError(t, err)

	rows, err := ReadProducts(bytes.NewReader(data), schema)
	require.NoError(t, err)
	assert.Empty(t, rows)
	wb, err := Open(bytes.NewReader(data), schema)
	require.NoError(t, err)
	assert.NoError(t, wb.Close())
}

func TestWorkbookReplaceDescriptions(t *testing.T) {
	data := workbook(t, testHeader,
		[]string{"1001", "Mug", `<p>mug</p><img src="a.png">`, "12000"},
		[]string{"1002", "Cup", "<p>cup</p>", "9000"},
	)
	wb, err := Open(bytes.NewReader(data), DefaultSchema())
	require.NoError(t, err)
	defer wb.Close()

	n, err := wb.ReplaceDescriptions(map[string]string{"1001": "<p>mug</p>", "9999": "x"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out, err := wb.Bytes()
	require.NoError(t, err)
	rows, err := ReadProducts(bytes.NewReader(out), DefaultSchema())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "<p>mug</p>", rows[0].Description)
	assert.Equal(t, "<p>cup</p>", rows[1].Description)
}

func TestOpenSchemaMismatch(t *testing.T) {
	strict, err := ParseSchema([]byte(`version: 3
strict: true
columns:
  - {name: 고객사상품코드, field: product_code}
  - {name: 상품명, field: name}
  - {name: 상품상세설명, field: description, type: html}
  - {name: 쇼핑몰판매가, type: integer}
`))
	require.NoError(t, err)

	_, err = Open(bytes.NewReader(workbook(t, testHeader, []string{"1", "a", "", "12000"})), strict)
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"not an integer", workbook(t, testHeader, []string{"1", "a", "", "cheap"})},
		{"extra column", workbook(t, append(append([]string{}, testHeader...), "메모"), []string{"1", "a", "", "1", "memo"})},
		{"reordered", workbook(t, []string{"상품명", "고객사상품코드", "상품상세설명", "쇼핑몰판매가"}, []string{"a", "1", "", "1"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(bytes.NewReader(tt.data), strict)
			var sm *SchemaMismatchError
			require.True(t, errors.As(err, &sm), "got %v", err)
			assert.Equal(t, 3, sm.Version)
			assert.NotEmpty(t, sm.Problems)
		})
	}
}
