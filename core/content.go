package core

import "html/template"

// RenderedPage is the HTML form of a Markdown source
type RenderedPage struct {
	HTML  template.HTML
	Title string // first heading, if any
	Tags  []string
}

// MarkdownRenderer converts Markdown sources to HTML
type MarkdownRenderer interface {
	Render(source []byte) (RenderedPage, error)
}

// SearchHit is a single full text search result
type SearchHit struct {
	Path      string // logical path of the page
	Title     string
	Highlight template.HTML
	Score     float64
}

// Searcher answers full text queries
type Searcher interface {
	Search(query string, limit int) ([]SearchHit, error)
}

// DefaultSearchLimit is the number of hits shown on the results page
const DefaultSearchLimit = 50
