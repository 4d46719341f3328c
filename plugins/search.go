package plugins

import (
	"fmt"
	"html"
	"html/template"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/tomachalek/riki/core"
	"go.uber.org/zap"
)

const (
	indexBatchSize    = 100
	fragmentSeparator = " … "
)

// indexedDocument is stored for every Markdown or text file
type indexedDocument struct {
	Path     string    `json:"path"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Tags     []string  `json:"tags"`
	Modified time.Time `json:"modified"`
}

// SearchIndex is a bleve full text index of the data directory. Document
// IDs are logical page paths.
type SearchIndex struct {
	index    bleve.Index
	dataDir  string
	renderer *MarkdownRenderer
}

func buildIndexMapping() mapping.IndexMapping {
	body := bleve.NewTextFieldMapping()
	body.Analyzer = en.AnalyzerName
	body.Store = true
	body.IncludeTermVectors = true

	title := bleve.NewTextFieldMapping()
	title.Analyzer = en.AnalyzerName
	title.Store = true

	keyword := bleve.NewKeywordFieldMapping()
	keyword.Store = true

	modified := bleve.NewDateTimeFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("path", keyword)
	doc.AddFieldMappingsAt("title", title)
	doc.AddFieldMappingsAt("body", body)
	doc.AddFieldMappingsAt("tags", keyword)
	doc.AddFieldMappingsAt("modified", modified)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = en.AnalyzerName
	return m
}

// OpenSearchIndex opens the index stored in indexDir or creates a new one.
// An empty indexDir keeps the index in memory. With recreate set, an
// existing index is dropped first.
func OpenSearchIndex(indexDir, dataDir string, renderer *MarkdownRenderer, recreate bool) (*SearchIndex, error) {
	if renderer == nil {
		return nil, fmt.Errorf("markdown renderer cannot be nil")
	}

	var index bleve.Index
	var err error
	switch {
	case indexDir == "":
		index, err = bleve.NewMemOnly(buildIndexMapping())
	case recreate:
		if err := os.RemoveAll(indexDir); err != nil {
			return nil, fmt.Errorf("failed to remove index %s: %w", indexDir, err)
		}
		index, err = bleve.New(indexDir, buildIndexMapping())
	default:
		index, err = bleve.Open(indexDir)
		if err == bleve.ErrorIndexPathDoesNotExist {
			core.Info("creating search index", zap.String("dir", indexDir))
			index, err = bleve.New(indexDir, buildIndexMapping())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open search index %s: %w", indexDir, err)
	}

	si := &SearchIndex{
		index:    index,
		dataDir:  filepath.Clean(dataDir),
		renderer: renderer,
	}
	si.updateDocCount()
	return si, nil
}

// Close closes the underlying index
func (si *SearchIndex) Close() error {
	return si.index.Close()
}

// DocCount returns the number of indexed documents
func (si *SearchIndex) DocCount() uint64 {
	count, err := si.index.DocCount()
	if err != nil {
		return 0
	}
	return count
}

func (si *SearchIndex) updateDocCount() {
	core.SetIndexedDocuments(si.DocCount())
}

// DocumentID returns the ID of a document: its slash separated path
// relative to the data directory, without the .md suffix
func DocumentID(relPath string) string {
	return strings.TrimSuffix(strings.TrimPrefix(filepath.ToSlash(relPath), "/"), ".md")
}

// PathTags derives tags from the directories and the name of a page,
// skipping "index"
func PathTags(id string) []string {
	id = strings.TrimSuffix(id, path.Ext(id))
	var tags []string
	for _, elm := range strings.Split(id, "/") {
		if elm == "" || elm == "index" {
			continue
		}
		tags = append(tags, elm)
	}
	return tags
}

func (si *SearchIndex) buildDocument(relPath string) (string, indexedDocument, error) {
	fsPath := filepath.Join(si.dataDir, filepath.FromSlash(relPath))
	info, err := os.Stat(fsPath)
	if err != nil {
		return "", indexedDocument{}, err
	}
	source, err := os.ReadFile(fsPath)
	if err != nil {
		return "", indexedDocument{}, err
	}

	id := DocumentID(relPath)
	doc := indexedDocument{
		Path:     id,
		Tags:     PathTags(id),
		Modified: info.ModTime(),
	}
	if core.IsPageFile(relPath) {
		text := si.renderer.PlainText(source)
		doc.Title = text.Title
		doc.Body = text.Body
		doc.Tags = append(doc.Tags, text.Tags...)
	} else {
		doc.Title = path.Base(id)
		doc.Body = string(source)
	}
	return id, doc, nil
}

// IndexFile adds or replaces the document of a single file
func (si *SearchIndex) IndexFile(relPath string) error {
	id, doc, err := si.buildDocument(relPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", relPath, err)
	}
	if err := si.index.Index(id, doc); err != nil {
		return fmt.Errorf("failed to index %s: %w", relPath, err)
	}
	si.updateDocCount()
	core.Debug("document indexed", zap.String("id", id))
	return nil
}

// RemoveFile deletes the document of a file
func (si *SearchIndex) RemoveFile(relPath string) error {
	id := DocumentID(relPath)
	if err := si.index.Delete(id); err != nil {
		return fmt.Errorf("failed to remove %s from index: %w", id, err)
	}
	si.updateDocCount()
	return nil
}

// IndexAll indexes every Markdown and text file of the data directory. It
// returns the number of indexed files.
func (si *SearchIndex) IndexAll() (int, error) {
	files, err := core.ListFiles(si.dataDir, core.IsIndexable, true)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	batch := si.index.NewBatch()
	indexed := 0
	for _, file := range files {
		rel, err := filepath.Rel(si.dataDir, file)
		if err != nil {
			continue
		}
		id, doc, err := si.buildDocument(rel)
		if err != nil {
			core.Warn("skipping unreadable document", zap.String("path", file), zap.Error(err))
			continue
		}
		if err := batch.Index(id, doc); err != nil {
			return indexed, fmt.Errorf("failed to index %s: %w", rel, err)
		}
		indexed++

		if batch.Size() >= indexBatchSize {
			if err := si.index.Batch(batch); err != nil {
				return indexed, err
			}
			batch = si.index.NewBatch()
		}
	}
	if batch.Size() > 0 {
		if err := si.index.Batch(batch); err != nil {
			return indexed, err
		}
	}

	si.updateDocCount()
	core.Info("data directory indexed",
		zap.String("dir", si.dataDir),
		zap.Int("documents", indexed),
		zap.Duration("duration", time.Since(start)))
	return indexed, nil
}

// Search runs a query string query over all fields
func (si *SearchIndex) Search(query string, limit int) ([]core.SearchHit, error) {
	if limit <= 0 {
		limit = core.DefaultSearchLimit
	}

	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit, 0, false)
	req.Fields = []string{"title"}
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Highlight.AddField("body")

	result, err := si.index.Search(req)
	if err != nil {
		return nil, err
	}

	hits := make([]core.SearchHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		title, _ := hit.Fields["title"].(string)
		hits = append(hits, core.SearchHit{
			Path:      hit.ID,
			Title:     title,
			Highlight: safeFragments(hit.Fragments["body"]),
			Score:     hit.Score,
		})
	}
	return hits, nil
}

// safeFragments joins highlighted fragments. The html highlighter
// already escapes the text around its <mark> tags.
func safeFragments(fragments []string) template.HTML {
	if len(fragments) == 0 {
		return ""
	}
	return template.HTML(strings.Join(fragments, html.EscapeString(fragmentSeparator)))
}
