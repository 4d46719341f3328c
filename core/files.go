package core

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// MtimeLayout is the format of FileInfo.MTime
const MtimeLayout = "2006-01-02 15:04:05"

// RawFiles maps raw asset suffixes to the content type they are served with
var RawFiles = map[string]string{
	"pdf":  "application/pdf",
	"txt":  "text/plain",
	"json": "application/json",
	"xml":  "text/xml",
	"yml":  "text/yaml",
	"yaml": "text/yaml",
}

// imageSuffixes are matched case-insensitively
var imageSuffixes = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"gif":  true,
	"ico":  true,
}

// FileInfo is a presentation record of a single file
type FileInfo struct {
	Size     string
	MTime    string
	RelPath  string
	Metadata *PictureInfo
}

// Entry is an immediate child of a directory
type Entry struct {
	Name  string
	Path  string // absolute path
	IsDir bool
}

// Suffix returns the part of the base name after the last dot, or an
// empty string when there is none.
func Suffix(path string) string {
	base := filepath.Base(path)
	idx := strings.LastIndex(base, ".")
	if idx < 0 {
		return ""
	}
	return base[idx+1:]
}

// IsDir tests whether a path corresponds to a directory
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// PageExists tests whether a path corresponds to a regular file
func PageExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// IsPageFile tests the .md suffix only
func IsPageFile(name string) bool {
	return strings.HasSuffix(name, ".md")
}

// IsIndexable matches the files the search index holds: pages and
// plain text files
func IsIndexable(name string) bool {
	return IsPageFile(name) || strings.HasSuffix(name, ".txt")
}

// IsImageFile tests whether a file name corresponds to a supported image.
// Only the suffix is examined.
func IsImageFile(name string) bool {
	return imageSuffixes[strings.ToLower(Suffix(name))]
}

// IsResizableImage is like IsImageFile but excludes icons
func IsResizableImage(name string) bool {
	suff := strings.ToLower(Suffix(name))
	return suff != "ico" && imageSuffixes[suff]
}

// RawFileType returns the content type of a raw asset
func RawFileType(name string) (string, bool) {
	mime, ok := RawFiles[Suffix(name)]
	return mime, ok
}

// StripPrefix turns an absolute content path into a logical one: the
// data directory prefix and the .md suffix are removed.
func StripPrefix(path, prefix string) string {
	rel := path
	if prefix != "" && strings.HasPrefix(path, prefix) {
		rel = strings.TrimPrefix(path[len(prefix):], string(filepath.Separator))
	}
	rel = filepath.ToSlash(rel)
	return strings.TrimSuffix(rel, ".md")
}

// FormatSize renders a size the way listings show it
func FormatSize(size int64) string {
	if size > 1e6 {
		return fmt.Sprintf("%01.1fMB", math.Round(float64(size)/1e4)/100)
	}
	return fmt.Sprintf("%dKB", int64(math.Round(float64(size)/1e3)))
}

// GetFileInfo obtains size, mtime and a path relative to pathPrefix
func GetFileInfo(path, pathPrefix string) (FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}

	relPath := path
	if pathPrefix != "" && strings.HasPrefix(path, pathPrefix) {
		relPath = strings.TrimPrefix(path[len(pathPrefix):], string(filepath.Separator))
	}

	return FileInfo{
		Size:    FormatSize(info.Size()),
		MTime:   info.ModTime().Truncate(time.Second).Format(MtimeLayout),
		RelPath: filepath.ToSlash(relPath),
	}, nil
}

// ListDirectory returns the immediate entries of a directory. Names
// starting with a dot are skipped; files sort before directories, then
// by name.
func ListDirectory(dir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if strings.HasPrefix(de.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, de.Name())
		entries = append(entries, Entry{
			Name:  de.Name(),
			Path:  path,
			IsDir: IsDir(path),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return !entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// ListFiles returns regular files of a directory that satisfy the
// predicate (nil accepts everything), optionally descending into
// subdirectories. The result is sorted by path.
func ListFiles(dir string, predicate func(name string) bool, recursive bool) ([]string, error) {
	entries, err := ListDirectory(dir)
	if err != nil {
		return nil, err
	}

	var ans []string
	for _, entry := range entries {
		if entry.IsDir {
			if !recursive {
				continue
			}
			sub, err := ListFiles(entry.Path, predicate, recursive)
			if err != nil {
				Debug("skipping unreadable directory", zap.String("path", entry.Path), zap.Error(err))
				continue
			}
			ans = append(ans, sub...)
			continue
		}
		if !PageExists(entry.Path) || (predicate != nil && !predicate(entry.Name)) {
			continue
		}
		ans = append(ans, entry.Path)
	}
	sort.Strings(ans)
	return ans, nil
}
