package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// MetadataFileName is the per-directory sidecar file
const MetadataFileName = "metadata.json"

// DirectoryType classifies a content directory
type DirectoryType string

const (
	DirectoryTypePage    DirectoryType = "page"
	DirectoryTypeGallery DirectoryType = "gallery"
)

// DirectoryMetadata is the content of a metadata.json sidecar
type DirectoryMetadata struct {
	DirectoryType DirectoryType `json:"directoryType"`
	Description   *string       `json:"description"`
}

// DefaultDirectoryMetadata is used for directories without a readable sidecar
func DefaultDirectoryMetadata() DirectoryMetadata {
	return DirectoryMetadata{DirectoryType: DirectoryTypePage}
}

// HasDescription reports whether a non-empty description is set
func (m DirectoryMetadata) HasDescription() bool {
	return m.Description != nil && *m.Description != ""
}

// MetadataResolver loads and memoizes DirectoryMetadata per directory.
// Entries are never re-read unless Invalidate or Reset is called.
type MetadataResolver struct {
	mu      sync.RWMutex
	entries map[string]DirectoryMetadata
}

// NewMetadataResolver creates an empty resolver
func NewMetadataResolver() *MetadataResolver {
	return &MetadataResolver{
		entries: make(map[string]DirectoryMetadata),
	}
}

// OwningDirectory returns the directory whose metadata applies to target:
// the target itself when it is a directory, its parent when the target
// is a non-existent index page of an existing directory.
func OwningDirectory(target string) (string, bool) {
	if IsDir(target) {
		return target, true
	}
	if filepath.Base(target) == "index" && !PageExists(target) && IsDir(filepath.Dir(target)) {
		return filepath.Dir(target), true
	}
	return "", false
}

// Resolve returns the metadata of the directory owning target. The second
// return value is false when target is neither a directory nor a virtual
// index page; the default metadata is returned in that case.
func (r *MetadataResolver) Resolve(target string) (DirectoryMetadata, bool) {
	dir, ok := OwningDirectory(target)
	if !ok {
		return DefaultDirectoryMetadata(), false
	}
	return r.ForDirectory(dir), true
}

// ForDirectory returns the memoized metadata of dir, reading its sidecar
// on first use.
func (r *MetadataResolver) ForDirectory(dir string) DirectoryMetadata {
	dir = filepath.Clean(dir)

	r.mu.RLock()
	meta, exists := r.entries[dir]
	r.mu.RUnlock()
	if exists {
		return meta
	}

	meta = loadDirectoryMetadata(dir)

	r.mu.Lock()
	defer r.mu.Unlock()
	// first stored value wins
	if stored, exists := r.entries[dir]; exists {
		return stored
	}
	r.entries[dir] = meta
	RecordMetadataCacheSize(len(r.entries))
	return meta
}

// Invalidate drops the memoized value of dir
func (r *MetadataResolver) Invalidate(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, filepath.Clean(dir))
	RecordMetadataCacheSize(len(r.entries))
}

// Reset drops all memoized values
func (r *MetadataResolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]DirectoryMetadata)
	RecordMetadataCacheSize(0)
}

// Len returns the number of memoized directories
func (r *MetadataResolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// loadDirectoryMetadata never fails: a missing or malformed sidecar
// yields the default value.
func loadDirectoryMetadata(dir string) DirectoryMetadata {
	path := filepath.Join(dir, MetadataFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		Debug("no directory metadata, using defaults", zap.String("dir", dir), zap.Error(err))
		return DefaultDirectoryMetadata()
	}

	var meta DirectoryMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		Debug("unreadable directory metadata, using defaults", zap.String("path", path), zap.Error(err))
		return DefaultDirectoryMetadata()
	}
	if meta.DirectoryType == "" {
		meta.DirectoryType = DirectoryTypePage
	}
	return meta
}
