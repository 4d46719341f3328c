package core

import (
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/gin-gonic/gin/render"
)

//go:embed templates/*.html
var templateFS embed.FS

// Names of the page templates
const (
	TemplatePage      = "page"
	TemplateDummyPage = "dummy_page"
	TemplateGallery   = "gallery"
	TemplateFiles     = "files"
	TemplateSearch    = "search"
	TemplateError     = "error"
)

var pageTemplates = []string{
	TemplatePage,
	TemplateDummyPage,
	TemplateGallery,
	TemplateFiles,
	TemplateSearch,
	TemplateError,
}

// ViewBase is shared by all page views
type ViewBase struct {
	AppName       string
	AppPath       string
	Title         string
	Breadcrumbs   []Breadcrumb
	SearchEnabled bool
}

// PageView is the data of a page or of a page without a source
type PageView struct {
	ViewBase
	LogicalPath string
	PageName    string
	CurrentDir  string
	Description string
	Content     template.HTML
	Tags        []string
	Revision    RevisionInfo
	PageList    []PageListItem
}

// GalleryImage is a single image of a gallery
type GalleryImage struct {
	Name string
	Path string // logical path
	Info FileInfo
}

// GalleryView is the data of a gallery page
type GalleryView struct {
	ViewBase
	CurrentDir  string
	Description string
	Images      []GalleryImage
	PageList    []PageListItem
}

// FilesView lists files with their details
type FilesView struct {
	ViewBase
	Files []FileInfo
}

// SearchView shows full text search results
type SearchView struct {
	ViewBase
	Query string
	Hits  []SearchHit
}

// ErrorView is rendered for failed requests
type ErrorView struct {
	ViewBase
	Status  int
	Message string
}

// TemplateRenderer implements gin's render.HTMLRender with one template
// set per page, each combined with the shared layout
type TemplateRenderer struct {
	templates map[string]*template.Template
}

// NewTemplateRenderer parses the embedded templates. Links produced by the
// url function are prefixed with appPath.
func NewTemplateRenderer(appPath string) (*TemplateRenderer, error) {
	funcs := template.FuncMap{
		"url": func(parts ...string) string {
			return appPath + strings.TrimPrefix(strings.Join(parts, "/"), "/")
		},
		"join": strings.Join,
	}

	layout, err := template.New("layout").Funcs(funcs).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	r := &TemplateRenderer{templates: make(map[string]*template.Template, len(pageTemplates))}
	for _, name := range pageTemplates {
		tmpl, err := layout.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := tmpl.ParseFS(templateFS, "templates/"+name+".html"); err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

// Instance returns the renderer of a named page
func (r *TemplateRenderer) Instance(name string, data interface{}) render.Render {
	tmpl, ok := r.templates[name]
	if !ok {
		tmpl = r.templates[TemplateError]
		data = ErrorView{Status: 500, Message: "unknown template " + name}
	}
	return render.HTML{
		Template: tmpl,
		Name:     "layout",
		Data:     data,
	}
}
