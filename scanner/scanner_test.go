package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTag(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func tagNames(items []Item) []string {
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.TagName
	}
	sort.Strings(names)
	return names
}

func TestScanFindsNestedTags(t *testing.T) {
	root := t.TempDir()
	writeTag(t, root, "#baz", "1")
	writeTag(t, root, "foo/#bar", "2")
	writeTag(t, root, "foo/bar/#qux", "3")

	items, err := Scan(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"baz", "foo.bar", "foo.bar.qux"}, tagNames(items))
}

func TestScanIgnoresNonHashFiles(t *testing.T) {
	root := t.TempDir()
	writeTag(t, root, "#k", "v")
	require.NoError(t, os.WriteFile(filepath.Join(root, "readme.txt"), []byte("ignore me"), 0o644))

	items, err := Scan(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, tagNames(items))
}

func TestScanIgnoresSymlinkedDirectoriesAndFiles(t *testing.T) {
	root := t.TempDir()
	writeTag(t, root, "#k", "v")

	other := t.TempDir()
	writeTag(t, other, "#hidden", "nope")

	require.NoError(t, os.Symlink(other, filepath.Join(root, "linked")))
	require.NoError(t, os.Symlink(filepath.Join(root, "#k"), filepath.Join(root, "#alias")))

	items, err := Scan(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, tagNames(items))
}

func TestScanObjectNotFound(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
	var notFound *ObjectNotFoundError
	require.ErrorAs(t, err, &notFound)
}
