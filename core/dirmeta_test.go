package core

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataDefaults(t *testing.T) {
	root := t.TempDir()
	resolver := NewMetadataResolver()

	meta := resolver.ForDirectory(root)
	assert.Equal(t, DirectoryTypePage, meta.DirectoryType)
	assert.Nil(t, meta.Description)
	assert.False(t, meta.HasDescription())
}

func TestMetadataParsing(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		dirType     DirectoryType
		description string
	}{
		{"gallery", `{"directoryType": "gallery", "description": "Trip"}`, DirectoryTypeGallery, "Trip"},
		{"page", `{"directoryType": "page"}`, DirectoryTypePage, ""},
		{"empty type", `{"description": "Just text"}`, DirectoryTypePage, "Just text"},
		{"unknown type", `{"directoryType": "bogus"}`, DirectoryType("bogus"), ""},
		{"malformed", `{not json`, DirectoryTypePage, ""},
		{"unknown keys", `{"directoryType": "gallery", "theme": "dark"}`, DirectoryTypeGallery, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, root, MetadataFileName, tt.content)

			meta := NewMetadataResolver().ForDirectory(root)
			assert.Equal(t, tt.dirType, meta.DirectoryType)
			if tt.description == "" {
				assert.False(t, meta.HasDescription())
			} else {
				require.True(t, meta.HasDescription())
				assert.Equal(t, tt.description, *meta.Description)
			}
		})
	}
}

func TestMetadataMemoization(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, MetadataFileName, `{"directoryType": "gallery"}`)
	resolver := NewMetadataResolver()

	assert.Equal(t, DirectoryTypeGallery, resolver.ForDirectory(root).DirectoryType)
	assert.Equal(t, 1, resolver.Len())

	// changes on disk are not observed until invalidation
	writeFile(t, root, MetadataFileName, `{"directoryType": "page"}`)
	assert.Equal(t, DirectoryTypeGallery, resolver.ForDirectory(root).DirectoryType)
	assert.Equal(t, DirectoryTypeGallery, resolver.ForDirectory(root+string(filepath.Separator)).DirectoryType)

	resolver.Invalidate(root)
	assert.Equal(t, 0, resolver.Len())
	assert.Equal(t, DirectoryTypePage, resolver.ForDirectory(root).DirectoryType)

	require.NoError(t, os.Remove(filepath.Join(root, MetadataFileName)))
	resolver.Reset()
	assert.Equal(t, 0, resolver.Len())
	assert.Equal(t, DirectoryTypePage, resolver.ForDirectory(root).DirectoryType)
}

func TestMetadataConcurrentAccess(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, MetadataFileName, `{"directoryType": "gallery"}`)
	resolver := NewMetadataResolver()

	var wg sync.WaitGroup
	results := make([]DirectoryType, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = resolver.ForDirectory(root).DirectoryType
		}(i)
	}
	wg.Wait()

	for _, dt := range results {
		assert.Equal(t, DirectoryTypeGallery, dt)
	}
	assert.Equal(t, 1, resolver.Len())
}

func TestOwningDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "notes/todo.md", "x")
	writeFile(t, root, "notes/index", "a file named index")

	dir, ok := OwningDirectory(filepath.Join(root, "notes"))
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(root, "notes"), dir)

	dir, ok = OwningDirectory(filepath.Join(root, "index"))
	assert.True(t, ok)
	assert.Equal(t, root, dir)

	_, ok = OwningDirectory(filepath.Join(root, "notes", "todo"))
	assert.False(t, ok)

	_, ok = OwningDirectory(filepath.Join(root, "notes", "index"))
	assert.False(t, ok)

	_, ok = OwningDirectory(filepath.Join(root, "missing", "index"))
	assert.False(t, ok)
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "photos/"+MetadataFileName, `{"directoryType": "gallery"}`)
	resolver := NewMetadataResolver()

	meta, ok := resolver.Resolve(filepath.Join(root, "photos", "index"))
	assert.True(t, ok)
	assert.Equal(t, DirectoryTypeGallery, meta.DirectoryType)

	meta, ok = resolver.Resolve(filepath.Join(root, "photos", "a.png"))
	assert.False(t, ok)
	assert.Equal(t, DirectoryTypePage, meta.DirectoryType)
}
