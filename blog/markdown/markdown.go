// Package markdown renders post bodies and derives listing excerpts.
package markdown

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// sectionKey carries the listing path of the post being rendered, such as
// "/en/blog", so sibling links resolve inside the same language and group.
var sectionKey = parser.NewContextKey()

type relativeLinkTransformer struct {
	baseURL string
}

func (t *relativeLinkTransformer) Transform(node *ast.Document, reader text.Reader, pc parser.Context) {
	section, _ := pc.Get(sectionKey).(string)
	section = strings.TrimSuffix(section, "/")

	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n := n.(type) {
		case *ast.Image:
			if isRelativeLink(string(n.Destination)) {
				n.Destination = []byte(t.baseURL + "/images/" + path.Base(string(n.Destination)))
			}
		case *ast.Link:
			dest := string(n.Destination)
			if isRelativeLink(dest) && !strings.HasPrefix(dest, "/") {
				// Sibling post links drop their file extension
				file := path.Base(dest)
				file = strings.TrimSuffix(file, ".phk")
				file = strings.TrimSuffix(file, ".md")
				n.Destination = []byte(t.baseURL + section + "/" + file)
			}
		}
		return ast.WalkContinue, nil
	})
}

func isRelativeLink(dest string) bool {
	if dest == "" || strings.HasPrefix(dest, "#") {
		return false
	}
	if strings.HasPrefix(dest, "/") {
		return !strings.HasPrefix(dest, "//")
	}
	if strings.HasPrefix(dest, "./") || strings.HasPrefix(dest, "../") {
		return true
	}
	return !strings.Contains(dest, ":")
}

// Renderer converts a post body to HTML. section is the listing path of the
// post's language and group, as built by resolution.URLBuilder.ListingURL.
type Renderer interface {
	Render(body []byte, section string) ([]byte, error)
}

type GoldmarkRenderer struct {
	md goldmark.Markdown
}

var _ Renderer = (*GoldmarkRenderer)(nil)

// NewRenderer returns a renderer that rewrites relative images against
// baseURL and sibling post links against baseURL plus the post's section.
func NewRenderer(baseURL string) *GoldmarkRenderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Table,
			extension.Strikethrough,
			extension.TaskList,
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(
				util.Prioritized(&relativeLinkTransformer{baseURL: strings.TrimSuffix(baseURL, "/")}, 100),
			),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
			html.WithUnsafe(),
		),
	)
	return &GoldmarkRenderer{md: md}
}

func (r *GoldmarkRenderer) Render(body []byte, section string) ([]byte, error) {
	pc := parser.NewContext()
	pc.Set(sectionKey, section)

	var buf bytes.Buffer
	if err := r.md.Convert(body, &buf, parser.WithContext(pc)); err != nil {
		return nil, fmt.Errorf("failed to convert markdown to HTML: %w", err)
	}
	return buf.Bytes(), nil
}
