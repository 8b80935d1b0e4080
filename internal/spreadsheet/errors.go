package spreadsheet

import (
	"fmt"
	"strings"
)

// FormatError means the upload could not be read as a product workbook.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("spreadsheet format: %s: %v", e.Reason, e.Err)
	}
	return "spreadsheet format: " + e.Reason
}

func (e *FormatError) Unwrap() error { return e.Err }

// SchemaMismatchError means a workbook no longer matches the schema it is
// rebuilt against.
type SchemaMismatchError struct {
	Version  int
	Problems []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema v%d mismatch: %s", e.Version, strings.Join(e.Problems, "; "))
}
