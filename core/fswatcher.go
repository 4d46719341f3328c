package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DocumentIndexer keeps a search index in sync with content files.
// Paths are slash separated and relative to the data directory.
type DocumentIndexer interface {
	IndexFile(relPath string) error
	RemoveFile(relPath string) error
}

// FileWatchEventType represents the type of an applied change
type FileWatchEventType int

const (
	FileCreated FileWatchEventType = iota
	FileModified
	FileDeleted
	DirCreated
	DirDeleted
)

func (t FileWatchEventType) String() string {
	switch t {
	case FileCreated:
		return "file_created"
	case FileModified:
		return "file_modified"
	case FileDeleted:
		return "file_deleted"
	case DirCreated:
		return "dir_created"
	case DirDeleted:
		return "dir_deleted"
	default:
		return "unknown"
	}
}

// FileWatcher follows changes under the data directory: it drops memoized
// directory metadata when a metadata.json changes and re-indexes changed
// Markdown and text files.
type FileWatcher struct {
	mu          sync.RWMutex
	resolver    *MetadataResolver
	indexer     DocumentIndexer
	watcher     *fsnotify.Watcher
	watchedDirs map[string]bool
	rootPath    string
	running     bool
	closed      bool
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewFileWatcher creates a watcher. indexer may be nil when search is
// disabled.
func NewFileWatcher(resolver *MetadataResolver, indexer DocumentIndexer) (*FileWatcher, error) {
	if resolver == nil {
		return nil, fmt.Errorf("metadata resolver cannot be nil")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &FileWatcher{
		resolver:    resolver,
		indexer:     indexer,
		watcher:     watcher,
		watchedDirs: make(map[string]bool),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// IgnoreFile reports whether a path is not content: hidden, temporary or
// a symlink
func IgnoreFile(path string, info os.FileInfo) bool {
	if info == nil {
		return true
	}

	baseName := filepath.Base(path)
	if strings.HasPrefix(baseName, ".") {
		return true
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return true
	}
	for _, suffix := range []string{".bak", ".tmp", "~", ".swp", ".lock"} {
		if strings.HasSuffix(baseName, suffix) {
			return true
		}
	}
	return false
}

func (fw *FileWatcher) relativePath(absPath string) (string, error) {
	if fw.rootPath == "" {
		return "", fmt.Errorf("root path not set")
	}
	rel, err := filepath.Rel(fw.rootPath, absPath)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func (fw *FileWatcher) addDirectoryWatch(dirPath string) error {
	return filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			Warn("error walking path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if path != dirPath && IgnoreFile(path, info) {
			return filepath.SkipDir
		}

		if err := fw.watcher.Add(path); err != nil {
			Warn("failed to watch directory", zap.String("path", path), zap.Error(err))
			return nil
		}
		fw.mu.Lock()
		fw.watchedDirs[path] = true
		fw.mu.Unlock()
		Debug("watching directory", zap.String("path", path))
		return nil
	})
}

func (fw *FileWatcher) removeDirectoryWatch(dirPath string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	prefix := dirPath + string(filepath.Separator)
	for watchedDir := range fw.watchedDirs {
		if watchedDir != dirPath && !strings.HasPrefix(watchedDir, prefix) {
			continue
		}
		// removed directories are usually dropped by fsnotify already
		_ = fw.watcher.Remove(watchedDir)
		delete(fw.watchedDirs, watchedDir)
		fw.resolver.Invalidate(watchedDir)
		Debug("stopped watching directory", zap.String("path", watchedDir))
	}
}

// Start watches rootPath and all its subdirectories
func (fw *FileWatcher) Start(rootPath string) error {
	if rootPath == "" {
		return fmt.Errorf("%w: watched root", ErrEmptyDirectory)
	}
	if !IsDir(rootPath) {
		return fmt.Errorf("%w: %s", ErrDirectoryNotExist, rootPath)
	}
	rootPath = filepath.Clean(rootPath)

	fw.mu.Lock()
	if fw.closed {
		fw.mu.Unlock()
		return ErrWatcherClosed
	}
	if fw.running {
		fw.mu.Unlock()
		return ErrWatcherRunning
	}
	fw.running = true
	fw.rootPath = rootPath
	fw.mu.Unlock()

	if err := fw.addDirectoryWatch(rootPath); err != nil {
		fw.mu.Lock()
		fw.running = false
		fw.mu.Unlock()
		return fmt.Errorf("failed to add initial directory watches: %w", err)
	}

	fw.wg.Add(1)
	go fw.processWatcherEvents()

	Info("content watcher started", zap.String("root", rootPath))
	return nil
}

// Stop terminates the watcher and releases its descriptors. It cannot be
// restarted. A watcher that never ran is closed as well and
// ErrWatcherNotRunning is returned.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	wasRunning, wasClosed := fw.running, fw.closed
	fw.running = false
	fw.closed = true
	fw.mu.Unlock()

	if wasClosed && !wasRunning {
		return ErrWatcherNotRunning
	}
	fw.cancel()
	err := fw.watcher.Close()
	fw.wg.Wait()
	if !wasRunning {
		return ErrWatcherNotRunning
	}

	Info("content watcher stopped")
	return err
}

func (fw *FileWatcher) processWatcherEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			switch {
			case event.Op&fsnotify.Create == fsnotify.Create:
				fw.handleCreated(event.Name)
			case event.Op&fsnotify.Write == fsnotify.Write:
				fw.handleModified(event.Name)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				fw.handleDeleted(event.Name)
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			Warn("content watcher error", zap.Error(err))
		}
	}
}

func (fw *FileWatcher) handleCreated(path string) {
	info, err := os.Lstat(path)
	if err != nil {
		Debug("created file vanished", zap.String("path", path), zap.Error(err))
		return
	}
	if IgnoreFile(path, info) {
		return
	}

	if info.IsDir() {
		if err := fw.addDirectoryWatch(path); err != nil {
			Warn("failed to watch new directory", zap.String("path", path), zap.Error(err))
		}
		fw.resolver.Invalidate(path)
		fw.record(DirCreated, path)
		return
	}
	fw.applyFileChange(path)
	fw.record(FileCreated, path)
}

func (fw *FileWatcher) handleModified(path string) {
	info, err := os.Lstat(path)
	if err != nil || info.IsDir() || IgnoreFile(path, info) {
		return
	}
	fw.applyFileChange(path)
	fw.record(FileModified, path)
}

func (fw *FileWatcher) handleDeleted(path string) {
	fw.mu.RLock()
	wasDir := fw.watchedDirs[path]
	fw.mu.RUnlock()

	if wasDir {
		fw.removeDirectoryWatch(path)
		fw.record(DirDeleted, path)
		return
	}

	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return
	}
	if name == MetadataFileName {
		fw.resolver.Invalidate(filepath.Dir(path))
	} else if fw.indexer != nil && IsIndexable(name) {
		if rel, err := fw.relativePath(path); err == nil {
			if err := fw.indexer.RemoveFile(rel); err != nil {
				Warn("failed to remove document from index", zap.String("path", rel), zap.Error(err))
			}
		}
	}
	fw.record(FileDeleted, path)
}

func (fw *FileWatcher) applyFileChange(path string) {
	name := filepath.Base(path)
	if name == MetadataFileName {
		fw.resolver.Invalidate(filepath.Dir(path))
		return
	}
	if fw.indexer == nil || !IsIndexable(name) {
		return
	}
	rel, err := fw.relativePath(path)
	if err != nil {
		Warn("failed to get relative path", zap.String("path", path), zap.Error(err))
		return
	}
	if err := fw.indexer.IndexFile(rel); err != nil {
		Warn("failed to index document", zap.String("path", rel), zap.Error(err))
	}
}

// record counts an applied change
func (fw *FileWatcher) record(typ FileWatchEventType, path string) {
	RecordFileWatcherEvent(typ.String())
	rel, err := fw.relativePath(path)
	if err != nil {
		rel = path
	}
	Debug("content change applied", zap.Stringer("type", typ), zap.String("path", rel))
}

// IsRunning returns whether the watcher is currently running
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	return fw.running
}

// WatchedDirectories returns a copy of the watched directories
func (fw *FileWatcher) WatchedDirectories() []string {
	fw.mu.RLock()
	defer fw.mu.RUnlock()

	dirs := make([]string, 0, len(fw.watchedDirs))
	for dir := range fw.watchedDirs {
		dirs = append(dirs, dir)
	}
	return dirs
}
