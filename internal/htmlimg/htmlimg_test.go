package htmlimg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractImages(t *testing.T) {
	uris, err := ExtractImages(`<div><img src="a.png"><p>text<img src="b.jpg" alt="b"></p></div><img><img src="">`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "b.jpg"}, uris)

	uris, err = ExtractImages("plain text, no markup")
	require.NoError(t, err)
	assert.Empty(t, uris)
}

func TestStripImages(t *testing.T) {
	in := `<p>intro</p><img src="a.png"><img src="b.png"><p>outro<img src="a.png"></p>`

	out, removed, err := StripImages(in, []string{"a.png"})
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, `<p>intro</p><img src="b.png"/><p>outro</p>`, out)

	out, removed, err = StripImages(in, nil)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.NotContains(t, out, "<html>")
	assert.Contains(t, out, `<img src="a.png"/>`)
}

func TestStripImagesIdempotent(t *testing.T) {
	in := `<style>p{color:red}</style><p>x<img src="zh.png"></p>`
	first, _, err := StripImages(in, []string{"zh.png"})
	require.NoError(t, err)
	second, _, err := StripImages(in, []string{"zh.png"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, `<style>p{color:red}</style><p>x</p>`, first)

	again, removed, err := StripImages(first, []string{"zh.png"})
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, first, again)
}
