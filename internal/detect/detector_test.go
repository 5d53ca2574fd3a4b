package detect

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvander/bookdex/internal/model"
	"github.com/kvander/bookdex/internal/textdoc"
)

func buildTOCBook(entries int, pageCount int) *textdoc.Document {
	var toc strings.Builder
	toc.WriteString("Contents\n\n")
	for i := 0; i < entries; i++ {
		fmt.Fprintf(&toc, "Chapter %d: Topic %d .......... %d\n", i+1, i+1, 10+i*20)
	}
	pages := make([]string, pageCount)
	pages[0] = "A Long Book\n\nby Someone"
	pages[1] = toc.String()
	for i := 2; i < pageCount; i++ {
		pages[i] = fmt.Sprintf("Plain body text continues on page %d of the book.", i+1)
	}
	return &textdoc.Document{Title: "A Long Book", Pages: pages}
}

func TestDetectTOCBook(t *testing.T) {
	doc := buildTOCBook(13, 310)
	d := NewDetector()
	detection := d.Detect(context.Background(), doc)
	require.Equal(t, model.DetectMethodTOC, detection.Method)
	require.Equal(t, 0.90, detection.Confidence)
	require.Len(t, detection.Chapters, 13)

	require.Equal(t, "Chapter 1: Topic 1", detection.Chapters[0].Title)
	require.Equal(t, 10, detection.Chapters[0].StartPage)
	require.Equal(t, 29, detection.Chapters[0].EndPage)
	require.Equal(t, 310, detection.Chapters[12].EndPage)
	for i := 1; i < len(detection.Chapters); i++ {
		require.Equal(t, detection.Chapters[i-1].EndPage+1, detection.Chapters[i].StartPage)
	}
}

func TestDetectPatternBook(t *testing.T) {
	pages := make([]string, 40)
	for i := range pages {
		pages[i] = fmt.Sprintf("The story continues here, without interruption, on page %d.", i+1)
	}
	pages[4] = "Chapter 1: The Beginning\n\nIt was a dark and stormy night."
	pages[14] = "Chapter 2: The Middle\n\nThings happened."
	pages[29] = "Chapter 3: The End\n\nAnd then it was over."

	d := NewDetector()
	detection := d.Detect(context.Background(), &textdoc.Document{Title: "story", Pages: pages})
	require.Equal(t, model.DetectMethodPattern, detection.Method)
	require.Equal(t, 0.80, detection.Confidence)
	require.Len(t, detection.Chapters, 3)
	require.Equal(t, "Chapter 1: The Beginning", detection.Chapters[0].Title)
	require.Equal(t, 5, detection.Chapters[0].StartPage)
	require.Equal(t, 14, detection.Chapters[0].EndPage)
	require.Equal(t, 40, detection.Chapters[2].EndPage)
}

func TestDetectMarkdownHeadings(t *testing.T) {
	pages := []string{
		"# Introduction\n\nSome opening prose goes here.",
		"running text without any heading on this page.",
		"## Methods\n\nMore prose follows the heading.",
	}
	d := NewDetector()
	detection := d.Detect(context.Background(), &textdoc.Document{Title: "notes", Pages: pages})
	require.Equal(t, model.DetectMethodHeading, detection.Method)
	require.Equal(t, 0.60, detection.Confidence)
	require.Len(t, detection.Chapters, 2)
	require.Equal(t, "Introduction", detection.Chapters[0].Title)
	require.Equal(t, "Methods", detection.Chapters[1].Title)
}

func TestDetectWholeDocumentFallback(t *testing.T) {
	pages := []string{
		"just some flowing text that never announces a chapter.",
		"and it keeps going exactly like that, page after page.",
	}
	d := NewDetector()
	detection := d.Detect(context.Background(), &textdoc.Document{Title: "flat", Pages: pages})
	require.Equal(t, model.DetectMethodWholeDocument, detection.Method)
	require.Equal(t, 0.0, detection.Confidence)
	require.Len(t, detection.Chapters, 1)
	require.Equal(t, 1, detection.Chapters[0].StartPage)
	require.Equal(t, 2, detection.Chapters[0].EndPage)
	require.Equal(t, "flat", detection.Chapters[0].Title)
}

func TestNormalizeStartsMergesAdjacent(t *testing.T) {
	starts := []start{
		{Title: "b", Page: 6},
		{Title: "a", Page: 5},
		{Title: "c", Page: 9},
		{Title: "out", Page: 99},
	}
	merged := normalizeStarts(starts, 20)
	require.Len(t, merged, 2)
	require.Equal(t, "a", merged[0].Title)
	require.Equal(t, "c", merged[1].Title)
}
