package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dharsanguruparan/imagefilter/internal/model"
)

// ErrUnsupportedFormat rejects uploads that are not OOXML workbooks.
var ErrUnsupportedFormat = errors.New("only .xlsx and .xlsm workbooks are supported")

// errStale marks async work whose file has moved on since it was queued.
var errStale = errors.New("stale task")

// TransitionError is returned when an action is requested against a file in
// the wrong status.
type TransitionError struct {
	// Verb is the past participle of the action, e.g. "validated".
	Verb    string
	Current model.FileStatus
	Allowed []model.FileStatus
}

func (e *TransitionError) Error() string {
	names := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		names[i] = s.String()
	}
	return fmt.Sprintf("only %s files can be %s (file is %s)", strings.Join(names, ", "), e.Verb, e.Current)
}

// OverrideError is returned when an operator tries to change an image the
// automatic pipeline still owns, or to a type other than excluded/included.
type OverrideError struct {
	Current   model.ImageType
	Requested model.ImageType
}

func (e *OverrideError) Error() string {
	if e.Requested != model.ImageExcluded && e.Requested != model.ImageIncluded {
		return fmt.Sprintf("images can only be set to excluded or included, not %s", e.Requested)
	}
	return fmt.Sprintf("only failed, excluded or included images can be changed (image is %s)", e.Current)
}

// Message turns an error from a boundary operation into text fit for users.
func Message(err error) string {
	var te *TransitionError
	var oe *OverrideError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, model.ErrFileNotFound):
		return "file does not exist"
	case errors.Is(err, model.ErrImageNotFound):
		return "image does not exist"
	case errors.Is(err, model.ErrProductNotFound):
		return "product does not exist"
	case errors.As(err, &te):
		return te.Error()
	case errors.As(err, &oe):
		return oe.Error()
	case errors.Is(err, ErrUnsupportedFormat), errors.Is(err, ErrNotGenerated):
		return err.Error()
	default:
		return "unknown error: " + err.Error()
	}
}
