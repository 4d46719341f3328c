package core

import (
	"context"
	"html"
	"html/template"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// writeFile creates root/rel with all parent directories
func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// writePNG creates a w x h gradient image at root/rel
func writePNG(t *testing.T, root, rel string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}

	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

// createDataDir builds the content tree shared by the classifier and
// server tests
func createDataDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeFile(t, root, "index.md", "# Home\n\nWelcome to the wiki.")
	writeFile(t, root, "notes/todo.md", "# Todo\n\n* buy milk")
	writeFile(t, root, "notes/.hidden.md", "secret")
	writeFile(t, root, "photos/metadata.json", `{"directoryType": "gallery", "description": "Summer holiday"}`)
	writePNG(t, root, "photos/a.png", 300, 600)
	writePNG(t, root, "photos/b.png", 400, 200)
	writeFile(t, root, "weird/metadata.json", `{"directoryType": "bogus"}`)
	writeFile(t, root, "broken/metadata.json", `{not json`)
	writeFile(t, root, "docs/readme.txt", "plain text")
	writeFile(t, root, "docs/data.json", `{"a": 1}`)
	writeFile(t, root, "docs/conf.yml", "a: 1")
	writePNG(t, root, "img/pic.png", 300, 600)
	writePNG(t, root, "img/fav.ico", 16, 16)
	return root
}

type fakeRenderer struct{}

func (fakeRenderer) Render(source []byte) (RenderedPage, error) {
	return RenderedPage{
		HTML:  template.HTML("<div class=\"rendered\">" + html.EscapeString(string(source)) + "</div>"),
		Title: "Rendered",
	}, nil
}

type fakeRevisions struct {
	info RevisionInfo
}

func (f fakeRevisions) Lookup(context.Context, string, string) RevisionInfo {
	return f.info
}

type fakeSearcher struct {
	hits []SearchHit
	err  error
}

func (f fakeSearcher) Search(string, int) ([]SearchHit, error) {
	return f.hits, f.err
}

// newTestContext initializes a context over a fresh data directory
func newTestContext(t *testing.T) *Context {
	t.Helper()
	return newTestContextIn(t, createDataDir(t))
}

func newTestContextIn(t *testing.T, dataDir string) *Context {
	t.Helper()

	config := NewDefaultConfig()
	config.DataDir = dataDir
	config.PictureCacheDir = filepath.Join(t.TempDir(), "cache")
	config.ThumbnailWorkers = 2

	ctx := &Context{
		Config:    config,
		Renderer:  fakeRenderer{},
		Revisions: fakeRevisions{info: RevisionInfo{User: "alice", Changeset: "7:0a1b2c", Date: "Mon Jan 04 10:00:00 2021 +0100"}},
	}
	require.NoError(t, InitializeContext(ctx))
	t.Cleanup(ctx.Close)
	return ctx
}
