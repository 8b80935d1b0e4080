package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ImageType is the classification result of one image.
type ImageType int

const (
	ImageUnclassified ImageType = iota
	ImageFailed
	ImageInProgress
	ImageExcluded
	ImageIncluded
)

var imageTypeNames = [...]string{"unclassified", "failed", "in_progress", "excluded", "included"}

func (t ImageType) String() string {
	if t < 0 || int(t) >= len(imageTypeNames) {
		return "unknown"
	}
	return imageTypeNames[t]
}

func (t ImageType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ImageType) UnmarshalText(text []byte) error {
	parsed, err := ParseImageType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseImageType accepts the names used in JSON and on the command line.
func ParseImageType(s string) (ImageType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range imageTypeNames {
		if name == s {
			return ImageType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown image type %q", s)
}

// Pending reports whether the automatic pipeline still owes this image a result.
func (t ImageType) Pending() bool {
	return t == ImageUnclassified || t == ImageInProgress
}

// Overridable reports whether an operator may replace the type.
func (t ImageType) Overridable() bool {
	return t == ImageFailed || t == ImageExcluded || t == ImageIncluded
}

// Image is one image reference found in a product description.
type Image struct {
	ID                  string          `json:"id"`
	ProductID           string          `json:"productId"`
	URI                 string          `json:"uri"`
	Type                ImageType       `json:"type"`
	ExtractedText       json.RawMessage `json:"extractedText,omitempty"`
	Error               *string         `json:"error,omitempty"`
	ServiceErrorCode    *int            `json:"serviceErrorCode,omitempty"`
	ServiceErrorMessage *string         `json:"serviceErrorMessage,omitempty"`
	ClassifiedAt        *time.Time      `json:"classifiedAt,omitempty"`
}

// ImageOutcome is what a classification callback writes onto an image.
type ImageOutcome struct {
	Type                ImageType
	ExtractedText       json.RawMessage
	Error               string
	ServiceErrorCode    *int
	ServiceErrorMessage string
	ClassifiedAt        time.Time
}

// Apply copies the outcome onto img.
func (o ImageOutcome) Apply(img *Image) {
	img.Type = o.Type
	img.ExtractedText = o.ExtractedText
	img.Error = optional(o.Error)
	img.ServiceErrorCode = o.ServiceErrorCode
	img.ServiceErrorMessage = optional(o.ServiceErrorMessage)
	at := o.ClassifiedAt
	img.ClassifiedAt = &at
}

// ImageQuery selects images of one file, optionally narrowed to a product and
// a set of types.
type ImageQuery struct {
	FileID    string
	ProductID string
	Types     []ImageType
}

// Matches reports whether t passes the type filter.
func (q ImageQuery) Matches(t ImageType) bool {
	if len(q.Types) == 0 {
		return true
	}
	for _, want := range q.Types {
		if want == t {
			return true
		}
	}
	return false
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
