package plugins

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomachalek/riki/core"
)

func newTestRenderer(t *testing.T, extensions ...string) *MarkdownRenderer {
	t.Helper()
	r, err := NewMarkdownRenderer(extensions)
	require.NoError(t, err)
	return r
}

func TestRenderBasic(t *testing.T) {
	r := newTestRenderer(t)

	page, err := r.Render([]byte("# Shopping list\n\nSome *emphasis* and a [link](other).\n"))
	require.NoError(t, err)
	html := string(page.HTML)
	assert.Contains(t, html, `<h1 id="shopping-list">Shopping list</h1>`)
	assert.Contains(t, html, "<em>emphasis</em>")
	assert.Contains(t, html, `<a href="other">link</a>`)
	assert.Equal(t, "Shopping list", page.Title)
	assert.Empty(t, page.Tags)
}

func TestRenderFrontMatter(t *testing.T) {
	r := newTestRenderer(t)
	source := "---\ntitle: Trip notes\ntags: [travel, summer]\n---\n# Day one\n\nArrived.\n"

	page, err := r.Render([]byte(source))
	require.NoError(t, err)
	assert.Equal(t, "Trip notes", page.Title)
	assert.Equal(t, []string{"travel", "summer"}, page.Tags)
	assert.NotContains(t, string(page.HTML), "title:")
	assert.Contains(t, string(page.HTML), "Day one")
}

func TestRenderExtensions(t *testing.T) {
	table := "| a | b |\n|---|---|\n| 1 | 2 |\n"

	plain := newTestRenderer(t)
	page, err := plain.Render([]byte(table))
	require.NoError(t, err)
	assert.NotContains(t, string(page.HTML), "<table>")

	withTables := newTestRenderer(t, "tables", " Strikethrough ", "tables")
	page, err = withTables.Render([]byte(table + "\n~~gone~~\n"))
	require.NoError(t, err)
	assert.Contains(t, string(page.HTML), "<table>")
	assert.Contains(t, string(page.HTML), "<del>gone</del>")

	highlighted := newTestRenderer(t, "highlight")
	page, err = highlighted.Render([]byte("```go\nfunc main() {}\n```\n"))
	require.NoError(t, err)
	assert.Contains(t, string(page.HTML), "<pre")
	assert.Contains(t, string(page.HTML), "style=")
}

func TestUnknownExtension(t *testing.T) {
	_, err := NewMarkdownRenderer([]string{"tables", "mermaid"})
	require.Error(t, err)
	var verr *core.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Equal(t, "mermaid", verr.Value)
}

func TestPlainText(t *testing.T) {
	r := newTestRenderer(t, "gfm")
	source := "---\ntags: [zoo]\n---\n# Animals\n\nThe **elephant** lives in the [zoo](zoo).\n\n```\ncode sample\n```\n"

	doc := r.PlainText([]byte(source))
	assert.Equal(t, "Animals", doc.Title)
	assert.Equal(t, []string{"zoo"}, doc.Tags)
	assert.Contains(t, doc.Body, "The elephant lives in the zoo.")
	assert.Contains(t, doc.Body, "code sample")
	assert.False(t, strings.ContainsAny(doc.Body, "*[]#"))
}

func TestPlainTextWithoutHeading(t *testing.T) {
	r := newTestRenderer(t)
	doc := r.PlainText([]byte("just a line of text"))
	assert.Empty(t, doc.Title)
	assert.Equal(t, "just a line of text", doc.Body)
}
