package detect

import (
	"regexp"
	"strings"

	"github.com/kvander/bookdex/internal/model"
	"github.com/kvander/bookdex/internal/textdoc"
)

// patternStrategy matches explicit chapter heading patterns in page text:
// "Chapter N", bare roman numerals, and isolated all-caps headings.
type patternStrategy struct{}

var (
	chapterHeadingRegex = regexp.MustCompile(`(?i)^\s*chapter\s+(\d{1,3}|[ivxlc]{1,8})\b[.:\s]*(.*)$`)
	romanHeadingRegex   = regexp.MustCompile(`^\s*([IVXLC]{1,8})\.\s+(\S.*)$`)
)

// How deep into a page a chapter opening may sit. Openings land at the
// top of a fresh page in practice.
const patternScanLines = 8

func (s *patternStrategy) Name() string {
	return model.DetectMethodPattern
}

func (s *patternStrategy) Confidence() float64 {
	return 0.80
}

func (s *patternStrategy) Detect(doc *textdoc.Document) []start {
	var starts []start
	for i, page := range doc.Pages {
		title, ok := matchChapterOpening(page)
		if !ok {
			continue
		}
		starts = append(starts, start{Title: title, Page: i + 1})
	}
	// A single hit is indistinguishable from a stray "Chapter 1" citation
	// in running text; require at least two for this tier to claim the
	// document.
	if len(starts) < 2 {
		return nil
	}
	return starts
}

func matchChapterOpening(page string) (string, bool) {
	lines := strings.Split(page, "\n")
	seen := 0
	for idx, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		seen++
		if seen > patternScanLines {
			break
		}
		if m := chapterHeadingRegex.FindStringSubmatch(trimmed); m != nil {
			title := strings.TrimSpace(m[2])
			if title == "" {
				title = nextNonEmptyLine(lines, idx+1)
			}
			if title == "" {
				title = trimmed
			} else {
				title = "Chapter " + m[1] + ": " + title
			}
			return title, true
		}
		if m := romanHeadingRegex.FindStringSubmatch(trimmed); m != nil {
			return strings.TrimSpace(m[1] + ". " + m[2]), true
		}
		if textdoc.IsAllCaps(trimmed) && textdoc.LooksLikeHeading(trimmed) && len(strings.Fields(trimmed)) >= 2 {
			return trimmed, true
		}
	}
	return "", false
}

func nextNonEmptyLine(lines []string, from int) string {
	for i := from; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
