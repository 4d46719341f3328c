package core

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server maps HTTP requests to classified content
type Server struct {
	ctx         *Context
	engine      *gin.Engine
	appPath     string
	rateLimiter *RateLimiter
}

// NewServer creates the gin engine with all routes. ctx must be
// initialized.
func NewServer(ctx *Context) (*Server, error) {
	if ctx.Classifier == nil || ctx.Thumbnails == nil {
		return nil, errors.New("context is not initialized")
	}
	if ctx.Renderer == nil {
		return nil, errors.New("markdown renderer is not set")
	}
	if ctx.Revisions == nil {
		ctx.Revisions = NoopRevisionProvider{}
	}
	if ctx.Health == nil {
		ctx.Health = NewHealthChecker()
	}

	appPath := NormalizeAppPath(ctx.Config.AppPath)
	renderer, err := NewTemplateRenderer(appPath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		ctx:     ctx,
		engine:  gin.New(),
		appPath: appPath,
	}
	s.engine.HTMLRender = renderer

	s.engine.Use(gin.Recovery())
	s.engine.Use(RequestLoggerMiddleware())
	s.engine.Use(MetricsMiddleware())
	s.engine.Use(SecurityHeadersMiddleware())
	if ctx.Config.RateLimit > 0 {
		s.rateLimiter = NewRateLimiter(ctx.Config.RateLimit)
		s.engine.Use(s.rateLimiter.Middleware())
	}

	s.engine.GET("/health", ctx.Health.HealthHandler())
	s.engine.GET("/metrics", gin.WrapH(MetricsHandler()))
	s.engine.NoRoute(func(c *gin.Context) {
		s.renderError(c, NewResolveError("route", c.Request.URL.Path, ErrNotFound))
	})

	group := s.engine.Group(strings.TrimSuffix(appPath, "/"))
	group.GET("/", s.handleIndex)
	group.GET("/page", s.handleIndex)
	group.GET("/page/*path", s.handleContent(ViewPage))
	group.GET("/gallery/*path", s.handleContent(ViewGallery))
	group.GET("/_images", s.handleImages)
	group.GET("/_search", s.handleSearch)

	return s, nil
}

// Engine returns the underlying gin engine
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Close releases the resources held by the middleware
func (s *Server) Close() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}

// URL returns the absolute URL of a path relative to the application
func (s *Server) URL(rel string) string {
	return s.appPath + strings.TrimPrefix(rel, "/")
}

func (s *Server) base(title string) ViewBase {
	return ViewBase{
		AppName:       s.ctx.Config.AppName,
		AppPath:       s.appPath,
		Title:         title,
		SearchEnabled: s.ctx.Searcher != nil,
	}
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, s.URL("page/index"))
}

func (s *Server) handleContent(view View) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := s.ctx.Classifier.Classify(c.Param("path"), view)
		if err != nil {
			s.renderError(c, err)
			return
		}
		if res.IsRedirect() {
			c.Redirect(http.StatusSeeOther, s.URL(res.RedirectTo))
			return
		}

		switch res.Kind {
		case KindRawAsset:
			c.Header("Content-Type", res.MimeType)
			c.File(res.FsPath)
		case KindImage:
			s.serveImage(c, res)
		case KindPage, KindMissing:
			s.servePage(c, res)
		case KindGallery:
			s.serveGallery(c, res)
		default:
			s.renderError(c, fmt.Errorf("unexpected resolution %s of %s", res.Kind, res.LogicalPath))
		}
	}
}

// thumbnailParams reads the width and normalize query parameters. A zero
// width means the original is requested.
func thumbnailParams(c *gin.Context) (int, bool, error) {
	rawWidth, ok := c.GetQuery("width")
	if !ok {
		return 0, false, nil
	}
	width, err := strconv.Atoi(rawWidth)
	if err != nil || width <= 0 {
		return 0, false, NewValidationError("width", rawWidth, "must be a positive integer")
	}

	normalize := false
	if rawNormalize := c.Query("normalize"); rawNormalize != "" {
		n, err := strconv.Atoi(rawNormalize)
		if err != nil {
			return 0, false, NewValidationError("normalize", rawNormalize, "must be an integer")
		}
		normalize = n != 0
	}
	return width, normalize, nil
}

func (s *Server) serveImage(c *gin.Context, res Resolution) {
	width, normalize, err := thumbnailParams(c)
	if err != nil {
		s.renderError(c, err)
		return
	}
	if width == 0 || !IsResizableImage(res.FsPath) {
		c.File(res.FsPath)
		return
	}

	thumbPath, err := s.ctx.Thumbnails.Get(c.Request.Context(), res.FsPath, width, normalize)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.Header("Content-Type", "image/jpeg")
	c.File(thumbPath)
}

func dirOf(logicalPath string) string {
	dir := path.Dir(logicalPath)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

func (s *Server) pageList(dir string) []PageListItem {
	items, err := PageList(s.ctx.Classifier.DataDir(), dir)
	if err != nil {
		Warn("cannot list directory", zap.String("dir", dir), zap.Error(err))
		return nil
	}
	return items
}

func description(meta DirectoryMetadata) string {
	if meta.HasDescription() {
		return *meta.Description
	}
	return ""
}

func (s *Server) servePage(c *gin.Context, res Resolution) {
	pageName := path.Base(res.LogicalPath)
	view := PageView{
		ViewBase:    s.base(pageName),
		LogicalPath: res.LogicalPath,
		PageName:    pageName,
		CurrentDir:  CurrentDirName(res.LogicalPath),
		Description: description(res.Directory),
		Revision:    DefaultRevisionInfo(),
		PageList:    s.pageList(res.DirPath),
	}
	view.Breadcrumbs = Breadcrumbs(dirOf(res.LogicalPath))

	if res.Kind == KindMissing {
		c.HTML(http.StatusOK, TemplateDummyPage, view)
		return
	}

	source, err := os.ReadFile(res.FsPath)
	if err != nil {
		s.renderError(c, fmt.Errorf("failed to read page %s: %w", res.LogicalPath, err))
		return
	}
	page, err := s.ctx.Renderer.Render(source)
	if err != nil {
		s.renderError(c, fmt.Errorf("failed to render page %s: %w", res.LogicalPath, err))
		return
	}

	view.Content = page.HTML
	view.Tags = page.Tags
	if page.Title != "" {
		view.Title = page.Title
	}
	view.Revision = s.ctx.Revisions.Lookup(c.Request.Context(), s.ctx.Classifier.DataDir(), res.FsPath)
	c.HTML(http.StatusOK, TemplatePage, view)
}

func (s *Server) serveGallery(c *gin.Context, res Resolution) {
	dataDir := s.ctx.Classifier.DataDir()
	dirRel := dirOf(res.LogicalPath)

	files, err := ListFiles(res.DirPath, IsImageFile, false)
	if err != nil {
		s.renderError(c, fmt.Errorf("failed to list gallery %s: %w", dirRel, err))
		return
	}

	images := make([]GalleryImage, 0, len(files))
	for _, file := range files {
		info, err := GetFileInfo(file, dataDir)
		if err != nil {
			Warn("cannot stat image", zap.String("path", file), zap.Error(err))
			continue
		}
		meta := ReadPictureInfo(file)
		info.Metadata = &meta
		images = append(images, GalleryImage{
			Name: filepath.Base(file),
			Path: info.RelPath,
			Info: info,
		})
	}

	currentDir := CurrentDirName(res.LogicalPath)
	view := GalleryView{
		ViewBase:    s.base(currentDir),
		CurrentDir:  currentDir,
		Description: description(res.Directory),
		Images:      images,
		PageList:    s.pageList(res.DirPath),
	}
	view.Breadcrumbs = Breadcrumbs(dirRel)
	c.HTML(http.StatusOK, TemplateGallery, view)
}

func (s *Server) handleImages(c *gin.Context) {
	dataDir := s.ctx.Classifier.DataDir()
	files, err := ListFiles(dataDir, IsImageFile, true)
	if err != nil {
		s.renderError(c, fmt.Errorf("failed to list images: %w", err))
		return
	}

	infos := make([]FileInfo, 0, len(files))
	for _, file := range files {
		info, err := GetFileInfo(file, dataDir)
		if err != nil {
			Warn("cannot stat image", zap.String("path", file), zap.Error(err))
			continue
		}
		infos = append(infos, info)
	}
	c.HTML(http.StatusOK, TemplateFiles, FilesView{ViewBase: s.base("Images"), Files: infos})
}

func (s *Server) handleSearch(c *gin.Context) {
	if s.ctx.Searcher == nil {
		s.renderError(c, ErrSearchDisabled)
		return
	}

	query := strings.TrimSpace(c.Query("query"))
	view := SearchView{ViewBase: s.base("Search"), Query: query}
	if query != "" {
		hits, err := s.ctx.Searcher.Search(query, DefaultSearchLimit)
		RecordSearchQuery(err == nil)
		if err != nil {
			s.renderError(c, NewValidationError("query", query, err.Error()))
			return
		}
		view.Hits = hits
	}
	c.HTML(http.StatusOK, TemplateSearch, view)
}

func (s *Server) renderError(c *gin.Context, err error) {
	status := HTTPStatus(err)
	message := http.StatusText(status)
	if status < http.StatusInternalServerError {
		message = err.Error()
	} else {
		Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}

	_ = c.Error(err)
	c.HTML(status, TemplateError, ErrorView{
		ViewBase: s.base(message),
		Status:   status,
		Message:  message,
	})
}
