package loader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/livetemplate/blockpage/internal/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseFileNestedJSON(t *testing.T) {
	path := writeFile(t, "page.json", `{"blocks":{"p":{"id":"p","type":"container","children":[{"id":"c","type":"text"}]}}}`)

	tpl, err := ParseFile(path)
	require.NoError(t, err)

	assert.Equal(t, path, tpl.Source)
	require.Len(t, tpl.Blocks, 2)
	childID := tpl.Blocks["p"].Children[0]
	assert.True(t, strings.HasPrefix(childID, "c_"))
	assert.Equal(t, "p", tpl.Blocks[childID].ParentID)
}

func TestParseFileFlatYAML(t *testing.T) {
	path := writeFile(t, "page.yaml", `
blocks:
  header:
    id: header
    type: section
    children: [logo]
  logo:
    id: logo
    type: image
    parentId: header
    static: true
    index: 2
regions:
  - name: top
    blocks: [header]
    shared: true
`)

	tpl, err := ParseFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"header", "logo"}, tpl.Order)
	assert.Equal(t, []block.Region{{Name: "top", Blocks: []string{"header"}, Shared: true}}, tpl.Regions)
	logo := tpl.Blocks["logo"]
	assert.Equal(t, "header", logo.ParentID)
	assert.Equal(t, "logo", logo.SemanticID)
	require.NotNil(t, logo.Index)
	assert.Equal(t, 3, *logo.Iteration())
	require.NoError(t, tpl.Validate())
}

func TestParseFileErrors(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		path := writeFile(t, "broken.json", `{"blocks": {`)
		_, err := ParseFile(path)
		require.Error(t, err)
		assert.True(t, errors.Is(err, block.ErrParse))
		assert.Contains(t, err.Error(), path)
	})

	t.Run("structural error names the file", func(t *testing.T) {
		path := writeFile(t, "bad.yaml", "blocks:\n  p:\n    type: x\n    children:\n      - id: c\n")
		_, err := ParseFile(path)
		require.Error(t, err)
		assert.True(t, errors.Is(err, block.ErrStructural))

		var te *block.TemplateError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, path, te.File)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := writeFile(t, "page.php", "<?php return [];")
		_, err := ParseFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported template format")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ParseFile(filepath.Join(t.TempDir(), "nope.json"))
		require.Error(t, err)
	})

	t.Run("top level list", func(t *testing.T) {
		_, err := NewParser(nil).ParseBytes([]byte("- a\n- b\n"), "list.yaml")
		assert.True(t, errors.Is(err, block.ErrParse))
	})
}

func TestEncodeKeepsKeyOrder(t *testing.T) {
	src := `{"blocks":{"zeta":{"id":"zeta","type":"text"},"alpha":{"id":"alpha","type":"text"}},"regions":[]}`
	o, err := Decode([]byte(src), "test")
	require.NoError(t, err)

	data, err := Encode(o, FormatJSON)
	require.NoError(t, err)
	assert.Less(t, strings.Index(string(data), `"zeta"`), strings.Index(string(data), `"alpha"`))

	yml, err := Encode(o, FormatYAML)
	require.NoError(t, err)
	assert.Less(t, strings.Index(string(yml), "zeta:"), strings.Index(string(yml), "alpha:"))

	back, err := Decode(yml, "test")
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha"}, back.Object("blocks").Keys())
}

func TestWriteFileRoundTrip(t *testing.T) {
	for _, name := range []string{"page.json", "page.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			format, err := FormatOf(path)
			require.NoError(t, err)

			tpl := block.NewTemplate(path)
			require.NoError(t, tpl.Add(&block.Block{ID: "a", Type: "text", Properties: map[string]any{"title": "Hi"}, Children: []string{}}))
			tpl.Regions = []block.Region{{Name: "main", Blocks: []string{"a"}}}

			require.NoError(t, WriteFile(path, tpl.ToObject(), format))

			back, err := ParseFile(path)
			require.NoError(t, err)
			assert.Equal(t, tpl.Regions, back.Regions)
			assert.Equal(t, "Hi", back.Blocks["a"].Properties["title"])

			entries, err := os.ReadDir(filepath.Dir(path))
			require.NoError(t, err)
			assert.Len(t, entries, 1, "temporary file must be cleaned up")
		})
	}
}
