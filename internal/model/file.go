// Package model contains the entities shared by the pipeline, the stores and
// the HTTP surface.
package model

import (
	"path/filepath"
	"strings"
	"time"
)

// FileStatus describes where an uploaded spreadsheet is in the pipeline. The
// numeric values are persisted, so never reorder them.
type FileStatus int

const (
	StatusUploaded FileStatus = iota
	StatusValidating
	StatusValidationFailed
	StatusRegistered
	StatusClassifying
	StatusClassified
	StatusGenerating
	StatusGenerated
)

var fileStatusNames = [...]string{
	"uploaded",
	"validating",
	"validation_failed",
	"registered",
	"classifying",
	"classified",
	"generating",
	"generated",
}

func (s FileStatus) String() string {
	if s < 0 || int(s) >= len(fileStatusNames) {
		return "unknown"
	}
	return fileStatusNames[s]
}

// Valid reports whether s is one of the declared statuses.
func (s FileStatus) Valid() bool {
	return s >= StatusUploaded && s <= StatusGenerated
}

// MarshalText renders the status by name in JSON payloads.
func (s FileStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Deletable reports whether a file in this status can be removed. Once
// classification has been requested, async work may still reference the rows.
func (s FileStatus) Deletable() bool {
	switch s {
	case StatusUploaded, StatusValidationFailed, StatusRegistered:
		return true
	}
	return false
}

// ErrorCode records why a file-level stage failed.
type ErrorCode int

const (
	ErrorRead ErrorCode = iota
	ErrorExtraction
	ErrorUnknown
	ErrorSchemaMismatch
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorRead:
		return "read error"
	case ErrorExtraction:
		return "extraction error"
	case ErrorSchemaMismatch:
		return "schema mismatch"
	default:
		return "unknown error"
	}
}

func (c ErrorCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// File is one uploaded spreadsheet job.
type File struct {
	ID           string     `json:"id"`
	Owner        string     `json:"owner"`
	Title        string     `json:"title"`
	OriginalName string     `json:"originalName"`
	OriginalKey  string     `json:"-"`
	GeneratedKey *string    `json:"-"`
	Status       FileStatus `json:"status"`
	ErrorCode    *ErrorCode `json:"error,omitempty"`
	ProductCount *int       `json:"productCount,omitempty"`
	ImageCount   *int       `json:"imageCount,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// OwnedBy reports whether owner uploaded the file.
func (f *File) OwnedBy(owner string) bool {
	return f.Owner == owner
}

// Fail flags the file with code and moves it to status.
func (f *File) Fail(status FileStatus, code ErrorCode) {
	f.Status = status
	f.ErrorCode = &code
}

// Generated reports whether an output spreadsheet has been written.
func (f *File) Generated() bool {
	return f.GeneratedKey != nil && *f.GeneratedKey != ""
}

// FilteredName derives the output file name: report.xlsx -> report_filtered.xlsx.
func FilteredName(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "_filtered" + ext
}
