package plugins

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/adrg/frontmatter"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/tomachalek/riki/core"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"

	highlighting "github.com/yuin/goldmark-highlighting/v2"
)

// PageMatter is the optional front matter of a page
type PageMatter struct {
	Title string   `yaml:"title" json:"title" toml:"title"`
	Tags  []string `yaml:"tags" json:"tags" toml:"tags"`
}

// MarkdownRenderer renders pages with goldmark
type MarkdownRenderer struct {
	markdown goldmark.Markdown
}

var markdownExtensions = map[string]goldmark.Extender{
	"tables":         extension.Table,
	"strikethrough":  extension.Strikethrough,
	"linkify":        extension.Linkify,
	"tasklist":       extension.TaskList,
	"gfm":            extension.GFM,
	"footnote":       extension.Footnote,
	"definitionlist": extension.DefinitionList,
	"typographer":    extension.Typographer,
	"highlight": highlighting.NewHighlighting(
		highlighting.WithStyle("monokai"),
		highlighting.WithFormatOptions(
			chromahtml.WithLineNumbers(true),
		),
	),
}

// NewMarkdownRenderer creates a renderer with the named extensions enabled.
// Unknown names are an error.
func NewMarkdownRenderer(extensions []string) (*MarkdownRenderer, error) {
	var enabled []goldmark.Extender
	seen := make(map[string]bool)
	for _, name := range extensions {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		ext, ok := markdownExtensions[name]
		if !ok {
			return nil, core.NewValidationError("markdownExtensions", name, "unknown extension")
		}
		seen[name] = true
		enabled = append(enabled, ext)
	}

	markdown := goldmark.New(
		goldmark.WithExtensions(enabled...),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)
	core.Debug("markdown renderer created", zap.Strings("extensions", extensions))
	return &MarkdownRenderer{markdown: markdown}, nil
}

// splitMatter separates the front matter from the Markdown body. Sources
// without front matter are returned unchanged.
func splitMatter(source []byte) (PageMatter, []byte) {
	var matter PageMatter
	rest, err := frontmatter.Parse(bytes.NewReader(source), &matter)
	if err != nil {
		return PageMatter{}, source
	}
	return matter, rest
}

func (r *MarkdownRenderer) Render(source []byte) (core.RenderedPage, error) {
	matter, body := splitMatter(source)

	doc := r.markdown.Parser().Parse(text.NewReader(body))
	var html bytes.Buffer
	if err := r.markdown.Renderer().Render(&html, body, doc); err != nil {
		return core.RenderedPage{}, fmt.Errorf("markdown conversion failed: %w", err)
	}

	title := matter.Title
	if title == "" {
		title = firstHeading(doc, body)
	}
	return core.RenderedPage{
		HTML:  template.HTML(html.String()),
		Title: title,
		Tags:  matter.Tags,
	}, nil
}

// Document is the text content of a page as the search index sees it
type Document struct {
	Title string
	Body  string
	Tags  []string
}

// PlainText extracts the text of a Markdown source, without markup
func (r *MarkdownRenderer) PlainText(source []byte) Document {
	matter, body := splitMatter(source)
	doc := r.markdown.Parser().Parse(text.NewReader(body))

	title := matter.Title
	if title == "" {
		title = firstHeading(doc, body)
	}
	return Document{
		Title: title,
		Body:  strings.TrimSpace(collectText(doc, body)),
		Tags:  matter.Tags,
	}
}

func firstHeading(doc ast.Node, source []byte) string {
	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if _, ok := n.(*ast.Heading); ok {
			title = strings.TrimSpace(collectText(n, source))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return title
}

func collectText(root ast.Node, source []byte) string {
	var buf strings.Builder
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				segment := lines.At(i)
				buf.Write(segment.Value(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			buf.Write(node.URL(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}
