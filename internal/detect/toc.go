package detect

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kvander/bookdex/internal/model"
	"github.com/kvander/bookdex/internal/textdoc"
)

// tocStrategy reads a machine-readable table of contents: entry lines
// with dotted leaders or a trailing page number.
type tocStrategy struct{}

var (
	dottedEntryRegex = regexp.MustCompile(`^(.+?)\s*\.{2,}\s*(\d{1,4})$`)
	plainEntryRegex  = regexp.MustCompile(`^(.+?)\s{2,}(\d{1,4})$`)
)

func (s *tocStrategy) Name() string {
	return model.DetectMethodTOC
}

func (s *tocStrategy) Confidence() float64 {
	return 0.90
}

func (s *tocStrategy) Detect(doc *textdoc.Document) []start {
	tocPage := doc.TOCPage()
	if tocPage == 0 {
		return nil
	}
	var starts []start
	lastPage := 0
	// A TOC may run over several pages; keep scanning while pages still
	// yield entries.
	for page := tocPage; page <= doc.PageCount(); page++ {
		entries := parseTOCEntries(doc.Pages[page-1])
		if page > tocPage && len(entries) == 0 {
			break
		}
		for _, e := range entries {
			// Entries must be non-decreasing; a jump backwards means we
			// ran into an index or a second listing.
			if e.Page < lastPage {
				continue
			}
			lastPage = e.Page
			starts = append(starts, start{Title: e.Title, Page: e.Page})
		}
	}
	return starts
}

type tocEntry struct {
	Title string
	Page  int
}

func parseTOCEntries(page string) []tocEntry {
	var entries []tocEntry
	for _, line := range strings.Split(page, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if lower == "contents" || lower == "table of contents" {
			continue
		}
		m := dottedEntryRegex.FindStringSubmatch(trimmed)
		if m == nil {
			m = plainEntryRegex.FindStringSubmatch(trimmed)
		}
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[1])
		pageNum, err := strconv.Atoi(m[2])
		if err != nil || title == "" {
			continue
		}
		entries = append(entries, tocEntry{Title: title, Page: pageNum})
	}
	return entries
}
