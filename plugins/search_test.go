package plugins

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func createSearchData(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeDoc(t, root, "index.md", "# Welcome\n\nThis wiki is about animals.")
	writeDoc(t, root, "animals/zoo.md", "# Zoo\n\nThe elephant is the largest animal in our zoo.")
	writeDoc(t, root, "animals/notes.txt", "giraffes are tall")
	writeDoc(t, root, "animals/.draft.md", "# Draft\n\nelephant draft")
	writeDoc(t, root, "animals/photo.png", "elephant picture")
	return root
}

func openTestIndex(t *testing.T, indexDir, dataDir string) *SearchIndex {
	t.Helper()
	si, err := OpenSearchIndex(indexDir, dataDir, newTestRenderer(t), false)
	require.NoError(t, err)
	t.Cleanup(func() { si.Close() })
	return si
}

func TestDocumentID(t *testing.T) {
	assert.Equal(t, "animals/zoo", DocumentID("animals/zoo.md"))
	assert.Equal(t, "animals/notes.txt", DocumentID("animals/notes.txt"))
	assert.Equal(t, "index", DocumentID("/index.md"))
}

func TestPathTags(t *testing.T) {
	assert.Equal(t, []string{"animals", "zoo"}, PathTags("animals/zoo"))
	assert.Equal(t, []string{"animals"}, PathTags("animals/index"))
	assert.Equal(t, []string{"animals", "notes"}, PathTags("animals/notes.txt"))
	assert.Nil(t, PathTags("index"))
}

func TestIndexAllAndSearch(t *testing.T) {
	dataDir := createSearchData(t)
	si := openTestIndex(t, "", dataDir)

	count, err := si.IndexAll()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, uint64(3), si.DocCount())

	hits, err := si.Search("elephant", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "animals/zoo", hits[0].Path)
	assert.Equal(t, "Zoo", hits[0].Title)
	assert.Greater(t, hits[0].Score, 0.0)
	assert.Contains(t, strings.ToLower(string(hits[0].Highlight)), "elephant")

	hits, err = si.Search("giraffes", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "animals/notes.txt", hits[0].Path)
	assert.Equal(t, "notes.txt", hits[0].Title)

	hits, err = si.Search("tags:animals", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = si.Search("unicorn", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndexFileAndRemove(t *testing.T) {
	dataDir := createSearchData(t)
	si := openTestIndex(t, "", dataDir)

	require.NoError(t, si.IndexFile("animals/zoo.md"))
	assert.Equal(t, uint64(1), si.DocCount())

	writeDoc(t, dataDir, "animals/zoo.md", "# Zoo\n\nNow with penguins.")
	require.NoError(t, si.IndexFile("animals/zoo.md"))
	assert.Equal(t, uint64(1), si.DocCount())

	hits, err := si.Search("penguins", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hits, err = si.Search("elephant", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, si.RemoveFile("animals/zoo.md"))
	assert.Equal(t, uint64(0), si.DocCount())

	assert.Error(t, si.IndexFile("animals/missing.md"))
}

func TestPersistentIndex(t *testing.T) {
	dataDir := createSearchData(t)
	indexDir := filepath.Join(t.TempDir(), "index")
	renderer := newTestRenderer(t)

	si, err := OpenSearchIndex(indexDir, dataDir, renderer, false)
	require.NoError(t, err)
	_, err = si.IndexAll()
	require.NoError(t, err)
	require.NoError(t, si.Close())

	si, err = OpenSearchIndex(indexDir, dataDir, renderer, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), si.DocCount())
	require.NoError(t, si.Close())

	si, err = OpenSearchIndex(indexDir, dataDir, renderer, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), si.DocCount())
	require.NoError(t, si.Close())
}

func TestOpenSearchIndexRequiresRenderer(t *testing.T) {
	_, err := OpenSearchIndex("", t.TempDir(), nil, false)
	assert.Error(t, err)
}

func TestSafeFragments(t *testing.T) {
	assert.Equal(t, "", string(safeFragments(nil)))
	assert.Equal(t,
		"a &lt;script&gt; <mark>elephant</mark>"+fragmentSeparator+"<mark>zoo</mark>",
		string(safeFragments([]string{"a &lt;script&gt; <mark>elephant</mark>", "<mark>zoo</mark>"})))
}

func TestSearchHighlightEscapedOnce(t *testing.T) {
	dataDir := t.TempDir()
	writeDoc(t, dataDir, "menu.txt", "fish & chips where x < y")
	si := openTestIndex(t, "", dataDir)
	_, err := si.IndexAll()
	require.NoError(t, err)

	hits, err := si.Search("chips", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	highlight := string(hits[0].Highlight)
	assert.Contains(t, highlight, "fish &amp; <mark>chips</mark>")
	assert.Contains(t, highlight, "x &lt; y")
	assert.NotContains(t, highlight, "&amp;amp;")
	assert.NotContains(t, highlight, "&amp;lt;")
}
