package markdown

import (
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

const (
	// MaxExcerptLength is the excerpt limit in characters.
	MaxExcerptLength = 300
	// MoreMarker ends an explicit excerpt.
	MoreMarker = "<!-- more -->"
)

var plain = goldmark.New(goldmark.WithExtensions(extension.Strikethrough, extension.Table))

// Excerpt returns the markdown-stripped text before the more marker, or the
// first paragraph when there is none, truncated to MaxExcerptLength.
func Excerpt(body string) string {
	var paragraphs []string
	if before, _, found := strings.Cut(body, MoreMarker); found {
		paragraphs = paragraphTexts([]byte(before), -1)
	} else {
		paragraphs = paragraphTexts([]byte(body), 1)
	}
	return truncate(strings.Join(paragraphs, " "), MaxExcerptLength)
}

// paragraphTexts returns the plain text of up to limit top-level paragraphs;
// a negative limit returns all of them.
func paragraphTexts(source []byte, limit int) []string {
	doc := plain.Parser().Parse(text.NewReader(source))

	var out []string
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if limit >= 0 && len(out) >= limit {
			break
		}
		if n.Kind() != ast.KindParagraph {
			continue
		}
		if s := collapse(plainText(n, source)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func plainText(node ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.Image, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			b.Write(n.Segment.Value(source))
			if n.SoftLineBreak() || n.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(n.Value)
		case *ast.AutoLink:
			b.Write(n.Label(source))
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	cut := string(runes[:limit-3])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "..."
}
