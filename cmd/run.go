package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tomachalek/riki/core"
	"github.com/tomachalek/riki/plugins"
	"go.uber.org/zap"
)

// searchService is the search index together with its initial
// background indexing
type searchService struct {
	index    *plugins.SearchIndex
	indexing sync.WaitGroup
}

// openSearch opens the search index when searchIndexDir is configured.
// An empty index is filled in the background.
func openSearch(ctx *core.Context, renderer *plugins.MarkdownRenderer) (*searchService, error) {
	if ctx.Config.SearchIndexDir == "" {
		core.Info("search disabled, no searchIndexDir configured")
		return nil, nil
	}

	index, err := plugins.OpenSearchIndex(ctx.Config.SearchIndexDir, ctx.Config.DataDir, renderer, false)
	if err != nil {
		return nil, err
	}
	ctx.Searcher = index
	ctx.Indexer = index

	search := &searchService{index: index}
	if index.DocCount() == 0 {
		search.indexing.Add(1)
		go func() {
			defer search.indexing.Done()
			if _, err := index.IndexAll(); err != nil {
				core.Error("initial indexing failed", zap.Error(err))
			}
		}()
	}
	return search, nil
}

// close releases the index after every writer is gone: the content
// watcher and the initial indexing
func (s *searchService) close(ctx *core.Context) {
	ctx.StopWatcher()
	s.indexing.Wait()
	if err := s.index.Close(); err != nil {
		core.Warn("failed to close search index", zap.Error(err))
	}
}

// Run serves the wiki until SIGINT or SIGTERM is received
func Run(ctx *core.Context, renderer *plugins.MarkdownRenderer) error {
	if err := core.InitializeContext(ctx); err != nil {
		return err
	}
	defer ctx.Close()

	search, err := openSearch(ctx, renderer)
	if err != nil {
		return fmt.Errorf("failed to open search index: %w", err)
	}
	if search != nil {
		defer search.close(ctx)
	}

	// the watcher keeps directory metadata and the search index up to date
	if err := ctx.StartWatcher(); err != nil {
		return err
	}
	core.RegisterDefaultHealthChecks(ctx.Health, ctx)

	srv, err := core.NewServer(ctx)
	if err != nil {
		return fmt.Errorf("failed to set up routes: %w", err)
	}
	defer srv.Close()

	server := &http.Server{
		Addr:         ctx.Config.Server.Address(),
		Handler:      srv.Engine(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		core.Info("starting server", zap.String("addr", server.Addr), zap.String("appPath", ctx.Config.AppPath))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-sigCtx.Done():
	}
	core.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	core.Info("server exited")
	return nil
}
