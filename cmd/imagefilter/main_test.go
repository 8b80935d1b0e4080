package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/imagefilter/internal/model"
	"github.com/dharsanguruparan/imagefilter/internal/spreadsheet"
)

func TestParseImageType(t *testing.T) {
	got, err := parseImageType("Excluded")
	require.NoError(t, err)
	assert.Equal(t, model.ImageExcluded, got)

	_, err = parseImageType("failed")
	assert.Error(t, err)
	_, err = parseImageType("bogus")
	assert.Error(t, err)
}

func TestImageQuery(t *testing.T) {
	q, err := imageQuery("f1", "p1", []string{"included", "failed"})
	require.NoError(t, err)
	assert.Equal(t, "f1", q.FileID)
	assert.Equal(t, "p1", q.ProductID)
	assert.Equal(t, []model.ImageType{model.ImageIncluded, model.ImageFailed}, q.Types)

	_, err = imageQuery("f1", "", []string{"nope"})
	assert.Error(t, err)
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"migrate", "upload", "validate", "classify", "generate", "delete", "override", "status", "products", "images", "download", "template", "run"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"override", "img-1", "failed"})
	assert.Error(t, root.Execute())
}

func TestTemplateCommand(t *testing.T) {
	t.Setenv("IMAGEFILTER_SCHEMA_PATH", "")
	path := filepath.Join(t.TempDir(), "blank.xlsx")

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"template", "-o", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "blank.xlsx")

	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	rows, err := spreadsheet.ReadProducts(fh, spreadsheet.DefaultSchema())
	require.NoError(t, err)
	assert.Empty(t, rows)
}
