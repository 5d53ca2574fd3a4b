package detect

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/kvander/bookdex/internal/model"
	"github.com/kvander/bookdex/internal/textdoc"
)

// headingStrategy is the last detection tier: segment on typography. For
// markdown sources it walks the goldmark AST for level 1-2 headings; for
// plain text it falls back to line-shape analysis of page openings.
type headingStrategy struct{}

func (s *headingStrategy) Name() string {
	return model.DetectMethodHeading
}

func (s *headingStrategy) Confidence() float64 {
	return 0.60
}

func (s *headingStrategy) Detect(doc *textdoc.Document) []start {
	var starts []start
	markdown := isMarkdown(doc)
	for i, page := range doc.Pages {
		var title string
		var ok bool
		if markdown {
			title, ok = markdownPageHeading(page)
		} else {
			title, ok = plainPageHeading(page)
		}
		if !ok {
			continue
		}
		starts = append(starts, start{Title: title, Page: i + 1})
	}
	if len(starts) < 2 {
		return nil
	}
	return starts
}

func isMarkdown(doc *textdoc.Document) bool {
	hits := 0
	for _, page := range doc.Pages {
		for _, line := range strings.Split(page, "\n") {
			if strings.HasPrefix(line, "# ") || strings.HasPrefix(line, "## ") {
				hits++
				if hits >= 2 {
					return true
				}
			}
		}
	}
	return false
}

func markdownPageHeading(page string) (string, bool) {
	source := []byte(page)
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(source))
	for node := root.FirstChild(); node != nil; node = node.NextSibling() {
		heading, ok := node.(*ast.Heading)
		if !ok {
			continue
		}
		if heading.Level > 2 {
			continue
		}
		title := strings.TrimSpace(string(heading.Text(source)))
		if title == "" {
			continue
		}
		return title, true
	}
	return "", false
}

// plainPageHeading accepts a page whose first non-empty line is shaped
// like a heading and sits apart from the body text below it.
func plainPageHeading(page string) (string, bool) {
	lines := strings.Split(page, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !textdoc.LooksLikeHeading(trimmed) {
			return "", false
		}
		// Headline set off by whitespace from the body.
		if i+1 < len(lines) && strings.TrimSpace(lines[i+1]) != "" {
			return "", false
		}
		return trimmed, true
	}
	return "", false
}
