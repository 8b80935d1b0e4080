package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/imagefilter/internal/model"
	"github.com/dharsanguruparan/imagefilter/internal/vision"
)

func TestDecide(t *testing.T) {
	excluded := []string{"zh", "ja"}
	annotated := func(locale string) *vision.Response {
		r := vision.Annotated(locale, "text")
		return &r
	}
	empty := vision.Empty()
	svcErr := vision.ServiceError(7, "permission denied")

	tests := []struct {
		name    string
		resp    *vision.Response
		callErr string
		want    model.ImageType
		errText string
	}{
		{"excluded locale", annotated("zh"), "", model.ImageExcluded, ""},
		{"locale case insensitive", annotated("JA"), "", model.ImageExcluded, ""},
		{"allowed locale", annotated("ko"), "", model.ImageIncluded, ""},
		{"no locale", annotated(""), "", model.ImageIncluded, ""},
		{"no text", &empty, "", model.ImageIncluded, ""},
		{"service error", &svcErr, "", model.ImageFailed, "permission denied"},
		{"unrecognized", &vision.Response{Kind: vision.KindUnrecognized}, "", model.ImageFailed, NeedsReview},
		{"missing response", nil, "", model.ImageFailed, NeedsReview},
		{"call failed", annotated("zh"), "timeout", model.ImageFailed, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Decide(tt.resp, tt.callErr, excluded)
			assert.Equal(t, tt.want, out.Type)
			assert.Equal(t, tt.errText, out.Error)
		})
	}

	out := Decide(&svcErr, "", excluded)
	require.NotNil(t, out.ServiceErrorCode)
	assert.Equal(t, 7, *out.ServiceErrorCode)
	assert.JSONEq(t, string(svcErr.Raw), string(out.ExtractedText))
}

func TestRegenerateDescription(t *testing.T) {
	original := `<p>a</p><img src="x.png"><img src="y.png">`

	got, changed, err := RegenerateDescription(original, nil)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, original, got)

	got, changed, err = RegenerateDescription(original, []string{"x.png"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, `<p>a</p><img src="y.png"/>`, got)

	again, _, err := RegenerateDescription(original, []string{"x.png"})
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestTransitionErrorMessage(t *testing.T) {
	err := &TransitionError{
		Verb:    "deleted",
		Current: model.StatusGenerating,
		Allowed: deletableStatuses,
	}
	assert.Equal(t, "only uploaded, validation_failed, registered files can be deleted (file is generating)", err.Error())
	assert.Equal(t, err.Error(), Message(err))
	assert.Equal(t, "file does not exist", Message(model.ErrFileNotFound))
}
