package core

import (
	"fmt"

	"go.uber.org/zap"
)

// Context holds the components shared by the command handlers and the
// HTTP server
type Context struct {
	Config      Config
	Resolver    *MetadataResolver
	Classifier  *Classifier
	Thumbnails  *ThumbnailCache
	Revisions   RevisionProvider
	Renderer    MarkdownRenderer
	Searcher    Searcher        // nil when search is disabled
	Indexer     DocumentIndexer // nil when search is disabled
	FileWatcher *FileWatcher
	Health      *HealthChecker
}

// InitializeContext creates the core components from ctx.Config. The
// renderer and the search components are provided by the caller.
func InitializeContext(ctx *Context) error {
	ctx.Resolver = NewMetadataResolver()
	ctx.Classifier = NewClassifier(ctx.Config.DataDir, ctx.Resolver)

	workers := ctx.Config.ThumbnailWorkers
	if workers == 0 {
		workers = DefaultThumbnailWorkers()
	}
	thumbnails, err := NewThumbnailCache(ctx.Config.PictureCacheDir, workers)
	if err != nil {
		return fmt.Errorf("failed to create thumbnail cache: %w", err)
	}
	ctx.Thumbnails = thumbnails

	if ctx.Revisions == nil {
		ctx.Revisions = NewMercurialProvider(ctx.Config.HgBinary, ctx.Config.HgInfoEncoding)
	}
	ctx.Health = NewHealthChecker()

	Info("context initialized",
		zap.String("dataDir", ctx.Config.DataDir),
		zap.String("pictureCacheDir", ctx.Config.PictureCacheDir),
		zap.Int("thumbnailWorkers", workers))
	return nil
}

// StartWatcher starts the content watcher when it is enabled
func (ctx *Context) StartWatcher() error {
	if !ctx.Config.WatchContent {
		return nil
	}

	watcher, err := NewFileWatcher(ctx.Resolver, ctx.Indexer)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Start(ctx.Config.DataDir); err != nil {
		watcher.Stop()
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	ctx.FileWatcher = watcher
	return nil
}

// StopWatcher stops the content watcher if it runs. No indexer calls are
// made once it returns.
func (ctx *Context) StopWatcher() {
	if ctx.FileWatcher != nil && ctx.FileWatcher.IsRunning() {
		if err := ctx.FileWatcher.Stop(); err != nil {
			Warn("failed to stop file watcher", zap.Error(err))
		}
	}
}

// Close stops the background workers
func (ctx *Context) Close() {
	ctx.StopWatcher()
	if ctx.Thumbnails != nil {
		ctx.Thumbnails.Stop()
	}
}
