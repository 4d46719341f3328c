package core

import (
	"path"
	"path/filepath"
	"strings"
)

// View is the kind of view a request asks for
type View int

const (
	ViewPage View = iota
	ViewGallery
)

func (v View) String() string {
	switch v {
	case ViewPage:
		return "page"
	case ViewGallery:
		return "gallery"
	default:
		return "unknown"
	}
}

// Kind discriminates a Resolution
type Kind int

const (
	// KindDirectory is a directory; the request must be redirected
	KindDirectory Kind = iota
	KindRawAsset
	KindImage
	// KindPage is an existing Markdown page
	KindPage
	// KindMissing is a page without a Markdown source yet
	KindMissing
	// KindGallery is the gallery view of a gallery typed directory
	KindGallery
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindRawAsset:
		return "raw"
	case KindImage:
		return "image"
	case KindPage:
		return "page"
	case KindMissing:
		return "missing"
	case KindGallery:
		return "gallery"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of classifying a logical path
type Resolution struct {
	Kind        Kind
	LogicalPath string // cleaned logical path
	FsPath      string // file to serve (Markdown source for pages)
	RedirectTo  string // canonical target, relative to the application path
	MimeType    string // raw assets only
	DirPath     string // directory providing the navigation context
	Directory   DirectoryMetadata
}

// IsRedirect reports whether the request has to be redirected
func (r Resolution) IsRedirect() bool {
	return r.RedirectTo != ""
}

// Classifier maps logical paths to content kinds
type Classifier struct {
	dataDir  string
	resolver *MetadataResolver
}

// NewClassifier creates a classifier for the content root dataDir
func NewClassifier(dataDir string, resolver *MetadataResolver) *Classifier {
	return &Classifier{
		dataDir:  filepath.Clean(dataDir),
		resolver: resolver,
	}
}

// DataDir returns the content root
func (c *Classifier) DataDir() string {
	return c.dataDir
}

// Resolver returns the directory metadata resolver in use
func (c *Classifier) Resolver() *MetadataResolver {
	return c.resolver
}

// Locate cleans a logical path and returns it together with its location
// inside the content root. The cleaned path can never leave the root.
func (c *Classifier) Locate(logicalPath string) (string, string) {
	rel := strings.TrimPrefix(path.Clean("/"+logicalPath), "/")
	if rel == "" {
		return "", c.dataDir
	}
	return rel, filepath.Join(c.dataDir, filepath.FromSlash(rel))
}

// Classify decides what logicalPath represents under the requested view
func (c *Classifier) Classify(logicalPath string, view View) (Resolution, error) {
	res, err := c.classify(logicalPath, view)
	if err == nil {
		RecordClassification(res.Kind)
	}
	return res, err
}

func (c *Classifier) classify(logicalPath string, view View) (Resolution, error) {
	rel, fsPath := c.Locate(logicalPath)
	if rel == "" {
		return Resolution{Kind: KindDirectory, DirPath: c.dataDir, RedirectTo: "page/index"}, nil
	}

	if IsDir(fsPath) {
		return c.classifyDirectory(rel, fsPath)
	}

	if view == ViewGallery {
		return c.classifyGallery(rel, fsPath)
	}

	if mime, ok := RawFileType(rel); ok {
		if !PageExists(fsPath) {
			return Resolution{}, NewResolveError("raw", rel, ErrNotFound)
		}
		return Resolution{
			Kind:        KindRawAsset,
			LogicalPath: rel,
			FsPath:      fsPath,
			MimeType:    mime,
			DirPath:     filepath.Dir(fsPath),
		}, nil
	}

	if IsImageFile(rel) {
		if !PageExists(fsPath) {
			return Resolution{}, NewResolveError("image", rel, ErrNotFound)
		}
		return Resolution{
			Kind:        KindImage,
			LogicalPath: rel,
			FsPath:      fsPath,
			DirPath:     filepath.Dir(fsPath),
		}, nil
	}

	return c.classifyPage(rel, fsPath)
}

func (c *Classifier) classifyDirectory(rel, fsPath string) (Resolution, error) {
	meta, _ := c.resolver.Resolve(fsPath)
	res := Resolution{
		Kind:        KindDirectory,
		LogicalPath: rel,
		DirPath:     fsPath,
		Directory:   meta,
	}

	switch meta.DirectoryType {
	case DirectoryTypeGallery:
		res.RedirectTo = path.Join("gallery", rel, "index")
	case DirectoryTypePage:
		res.RedirectTo = path.Join("page", rel, "index")
	default:
		return Resolution{}, &UnknownDirectoryTypeError{Dir: fsPath, Type: meta.DirectoryType}
	}
	return res, nil
}

// classifyGallery handles gallery views of a path inside a directory,
// typically the virtual page <dir>/index.
func (c *Classifier) classifyGallery(rel, fsPath string) (Resolution, error) {
	dirFs := filepath.Dir(fsPath)
	dirRel := path.Dir(rel)
	if dirRel == "." {
		dirRel = ""
	}
	meta, ok := c.resolver.Resolve(fsPath)
	if !ok && IsDir(dirFs) {
		// any other name redirects to the index of its directory
		meta, ok = c.resolver.Resolve(dirFs)
	}
	if !ok {
		return Resolution{}, NewResolveError("gallery", rel, ErrNotFound)
	}

	res := Resolution{
		Kind:        KindDirectory,
		LogicalPath: rel,
		DirPath:     dirFs,
		Directory:   meta,
	}

	switch meta.DirectoryType {
	case DirectoryTypePage:
		res.RedirectTo = path.Join("page", dirRel, "index")
	case DirectoryTypeGallery:
		if path.Base(rel) != "index" {
			res.RedirectTo = path.Join("gallery", dirRel, "index")
			return res, nil
		}
		res.Kind = KindGallery
	default:
		return Resolution{}, &UnknownDirectoryTypeError{Dir: dirFs, Type: meta.DirectoryType}
	}
	return res, nil
}

func (c *Classifier) classifyPage(rel, fsPath string) (Resolution, error) {
	res := Resolution{
		Kind:        KindPage,
		LogicalPath: rel,
		FsPath:      fsPath + ".md",
		DirPath:     filepath.Dir(fsPath),
	}

	// a page without a source is only valid inside an existing directory
	meta, ok := c.resolver.Resolve(res.DirPath)
	if !ok || !IsDir(res.DirPath) {
		return Resolution{}, NewResolveError("page", rel, ErrNotFound)
	}
	if !PageExists(res.FsPath) {
		res.Kind = KindMissing
	}

	res.Directory = meta
	return res, nil
}
