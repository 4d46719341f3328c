package core

import (
	"path"
	"strings"
)

// Breadcrumb is a single element of a directory path
type Breadcrumb struct {
	Label string
	Path  string
}

// PageListItem is an entry of the page list shown next to a page
type PageListItem struct {
	Path  string // logical path
	Name  string
	IsDir bool
}

// Breadcrumbs splits a slash separated path into cumulative prefixes,
// e.g. "a/b" yields (a, a) and (b, a/b). Empty segments are dropped.
func Breadcrumbs(dirPath string) []Breadcrumb {
	var ans []Breadcrumb
	var cumul []string
	for _, elm := range strings.Split(dirPath, "/") {
		if elm == "" {
			continue
		}
		cumul = append(cumul, elm)
		ans = append(ans, Breadcrumb{Label: elm, Path: strings.Join(cumul, "/")})
	}
	return ans
}

// CurrentDirName returns the base name of a logical path, or the name
// of its parent when the base name is "index".
func CurrentDirName(logicalPath string) string {
	ans := path.Base(logicalPath)
	if ans == "index" {
		ans = path.Base(path.Dir(logicalPath))
	}
	if ans == "." || ans == "/" {
		return ""
	}
	return ans
}

// PageList lists the directory dir for navigation. Paths are logical,
// relative to dataDir.
func PageList(dataDir, dir string) ([]PageListItem, error) {
	entries, err := ListDirectory(dir)
	if err != nil {
		return nil, err
	}

	items := make([]PageListItem, 0, len(entries))
	for _, entry := range entries {
		logical := StripPrefix(entry.Path, dataDir)
		items = append(items, PageListItem{
			Path:  logical,
			Name:  path.Base(logical),
			IsDir: entry.IsDir,
		})
	}
	return items, nil
}
