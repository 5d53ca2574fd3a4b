package textdoc

import (
	"strings"
	"unicode"
)

// Document is the text rendering of an ingested source. Pages arrive
// separated by form-feed, the convention of pdftotext-style extractors;
// binary format parsing belongs to the upstream collaborator.
type Document struct {
	Title string
	Pages []string
}

func Parse(title string, data []byte) *Document {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	pages := strings.Split(text, "\f")
	// A trailing form-feed produces one empty page, drop it.
	if n := len(pages); n > 1 && strings.TrimSpace(pages[n-1]) == "" {
		pages = pages[:n-1]
	}
	return &Document{Title: title, Pages: pages}
}

func (d *Document) PageCount() int {
	return len(d.Pages)
}

func (d *Document) WordCount() int {
	total := 0
	for _, page := range d.Pages {
		total += len(strings.Fields(page))
	}
	return total
}

// PageRange joins pages [start, end] (1-based, inclusive) into one string.
func (d *Document) PageRange(start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(d.Pages) {
		end = len(d.Pages)
	}
	if start > end {
		return ""
	}
	return strings.Join(d.Pages[start-1:end], "\n")
}

// TOCPage returns the 1-based index of the first page that looks like a
// table of contents, or 0 when none is found. Only the front matter is
// scanned; a "Contents" heading deep inside the body is almost never a TOC.
func (d *Document) TOCPage() int {
	limit := len(d.Pages)
	if limit > 20 {
		limit = 20
	}
	for i := 0; i < limit; i++ {
		if looksLikeTOCPage(d.Pages[i]) {
			return i + 1
		}
	}
	return 0
}

func looksLikeTOCPage(page string) bool {
	lines := strings.Split(page, "\n")
	seenHeader := false
	entryLines := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if !seenHeader && (lower == "contents" || lower == "table of contents") {
			seenHeader = true
			continue
		}
		if seenHeader && (strings.Contains(trimmed, "....") || endsWithPageNumber(trimmed)) {
			entryLines++
		}
	}
	return seenHeader && entryLines >= 3
}

func endsWithPageNumber(line string) bool {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return false
	}
	last := fields[len(fields)-1]
	if len(last) > 4 {
		return false
	}
	for _, r := range last {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// HeadingDensity is the fraction of non-empty lines that look like
// headings (short, no trailing period, title- or upper-cased).
func (d *Document) HeadingDensity() float64 {
	total := 0
	headings := 0
	for _, page := range d.Pages {
		for _, line := range strings.Split(page, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			total++
			if LooksLikeHeading(trimmed) {
				headings++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(headings) / float64(total)
}

// LooksLikeHeading applies line-shape heuristics: headings are short,
// carry no sentence punctuation, and start upper-cased.
func LooksLikeHeading(line string) bool {
	if len(line) == 0 || len(line) > 80 {
		return false
	}
	if strings.HasSuffix(line, ".") || strings.HasSuffix(line, ",") || strings.HasSuffix(line, ";") {
		return false
	}
	words := strings.Fields(line)
	if len(words) == 0 || len(words) > 12 {
		return false
	}
	first := []rune(words[0])[0]
	if !unicode.IsUpper(first) && !unicode.IsDigit(first) {
		return false
	}
	return true
}

// IsAllCaps reports whether a line consists of upper-case letters,
// digits and separators only, with at least one letter.
func IsAllCaps(line string) bool {
	hasLetter := false
	for _, r := range line {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}
