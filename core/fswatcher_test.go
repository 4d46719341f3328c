package core

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingIndexer struct {
	mu      sync.Mutex
	indexed []string
	removed []string
}

func (r *recordingIndexer) IndexFile(rel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = append(r.indexed, rel)
	return nil
}

func (r *recordingIndexer) RemoveFile(rel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, rel)
	return nil
}

func (r *recordingIndexer) has(list *[]string, rel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range *list {
		if item == rel {
			return true
		}
	}
	return false
}

func startTestWatcher(t *testing.T, root string, indexer DocumentIndexer) (*FileWatcher, *MetadataResolver) {
	t.Helper()
	resolver := NewMetadataResolver()
	fw, err := NewFileWatcher(resolver, indexer)
	require.NoError(t, err)
	require.NoError(t, fw.Start(root))
	t.Cleanup(func() {
		if fw.IsRunning() {
			fw.Stop()
		}
	})
	return fw, resolver
}

func TestFileWatcherLifecycle(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "notes", "deep"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".hg"), 0755))

	fw, err := NewFileWatcher(NewMetadataResolver(), nil)
	require.NoError(t, err)
	assert.False(t, fw.IsRunning())
	assert.ErrorIs(t, fw.Start(filepath.Join(root, "missing")), ErrDirectoryNotExist)

	require.NoError(t, fw.Start(root))
	assert.True(t, fw.IsRunning())
	assert.ErrorIs(t, fw.Start(root), ErrWatcherRunning)
	assert.ElementsMatch(t, []string{
		root,
		filepath.Join(root, "notes"),
		filepath.Join(root, "notes", "deep"),
	}, fw.WatchedDirectories())

	require.NoError(t, fw.Stop())
	assert.False(t, fw.IsRunning())
	assert.ErrorIs(t, fw.Stop(), ErrWatcherNotRunning)
	assert.ErrorIs(t, fw.Start(root), ErrWatcherClosed)
}

func TestFileWatcherStopWithoutStart(t *testing.T) {
	fw, err := NewFileWatcher(NewMetadataResolver(), nil)
	require.NoError(t, err)

	assert.ErrorIs(t, fw.Stop(), ErrWatcherNotRunning)
	assert.ErrorIs(t, fw.watcher.Add(t.TempDir()), fsnotify.ErrClosed)
	assert.ErrorIs(t, fw.Start(t.TempDir()), ErrWatcherClosed)
	assert.ErrorIs(t, fw.Stop(), ErrWatcherNotRunning)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestFileWatcherRecordsAppliedChanges(t *testing.T) {
	root := t.TempDir()
	startTestWatcher(t, root, nil)
	created := fileWatcherEvents.WithLabelValues(FileCreated.String())
	before := counterValue(t, created)

	writeFile(t, root, "fresh.md", "# Fresh")
	require.Eventually(t, func() bool {
		return counterValue(t, created) > before
	}, 5*time.Second, 20*time.Millisecond)
}

func TestFileWatchEventTypeString(t *testing.T) {
	assert.Equal(t, "file_created", FileCreated.String())
	assert.Equal(t, "dir_deleted", DirDeleted.String())
	assert.Equal(t, "unknown", FileWatchEventType(42).String())
}

func TestFileWatcherInvalidatesMetadata(t *testing.T) {
	root := t.TempDir()
	gallery := filepath.Join(root, "photos")
	require.NoError(t, os.MkdirAll(gallery, 0755))
	_, resolver := startTestWatcher(t, root, nil)

	assert.Equal(t, DirectoryTypePage, resolver.ForDirectory(gallery).DirectoryType)

	writeFile(t, root, "photos/"+MetadataFileName, `{"directoryType": "gallery"}`)
	require.Eventually(t, func() bool {
		return resolver.ForDirectory(gallery).DirectoryType == DirectoryTypeGallery
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(gallery, MetadataFileName)))
	require.Eventually(t, func() bool {
		return resolver.ForDirectory(gallery).DirectoryType == DirectoryTypePage
	}, 5*time.Second, 20*time.Millisecond)
}

func TestFileWatcherReindexesDocuments(t *testing.T) {
	root := t.TempDir()
	indexer := &recordingIndexer{}
	fw, _ := startTestWatcher(t, root, indexer)

	writeFile(t, root, "todo.md", "# Todo")
	writeFile(t, root, "picture.png", "not indexed")
	writeFile(t, root, ".draft.md", "hidden")
	require.Eventually(t, func() bool {
		return indexer.has(&indexer.indexed, "todo.md")
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Mkdir(filepath.Join(root, "notes"), 0755))
	require.Eventually(t, func() bool {
		for _, dir := range fw.WatchedDirectories() {
			if dir == filepath.Join(root, "notes") {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	writeFile(t, root, "notes/ideas.txt", "ideas")
	require.Eventually(t, func() bool {
		return indexer.has(&indexer.indexed, "notes/ideas.txt")
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(root, "todo.md")))
	require.Eventually(t, func() bool {
		return indexer.has(&indexer.removed, "todo.md")
	}, 5*time.Second, 20*time.Millisecond)

	assert.False(t, indexer.has(&indexer.indexed, "picture.png"))
	assert.False(t, indexer.has(&indexer.indexed, ".draft.md"))
}

func TestIgnoreFile(t *testing.T) {
	root := t.TempDir()
	plain := writeFile(t, root, "page.md", "x")
	backup := writeFile(t, root, "page.md~", "x")
	hidden := writeFile(t, root, ".page.md", "x")

	info := func(path string) os.FileInfo {
		fi, err := os.Lstat(path)
		require.NoError(t, err)
		return fi
	}
	assert.False(t, IgnoreFile(plain, info(plain)))
	assert.True(t, IgnoreFile(backup, info(backup)))
	assert.True(t, IgnoreFile(hidden, info(hidden)))
	assert.True(t, IgnoreFile(plain, nil))
}
