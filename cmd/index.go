package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tomachalek/riki/core"
	"github.com/tomachalek/riki/plugins"
	"go.uber.org/zap"
)

// Index builds or updates the search index of the data directory. With
// Config.Index.File set only that file is (re)indexed.
func Index(ctx *core.Context, renderer *plugins.MarkdownRenderer) error {
	cfg := ctx.Config
	index, err := plugins.OpenSearchIndex(cfg.SearchIndexDir, cfg.DataDir, renderer, cfg.Index.NewIndex)
	if err != nil {
		return err
	}
	defer index.Close()

	if cfg.Index.File != "" {
		rel, err := relativeToDataDir(cfg.DataDir, cfg.Index.File)
		if err != nil {
			return err
		}
		return index.IndexFile(rel)
	}

	count, err := index.IndexAll()
	if err != nil {
		return fmt.Errorf("indexing failed after %d documents: %w", count, err)
	}
	core.Info("index ready", zap.String("dir", cfg.SearchIndexDir), zap.Uint64("documents", index.DocCount()))
	return nil
}

// relativeToDataDir accepts both paths relative to the data directory
// and paths inside it
func relativeToDataDir(dataDir, file string) (string, error) {
	if !filepath.IsAbs(file) {
		return filepath.ToSlash(filepath.Clean(file)), nil
	}
	rel, err := filepath.Rel(dataDir, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is not inside the data directory %s", file, dataDir)
	}
	return filepath.ToSlash(rel), nil
}
