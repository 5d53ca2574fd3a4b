package classifier

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvander/bookdex/internal/model"
	"github.com/kvander/bookdex/internal/textdoc"
)

func tocPage(entries int) string {
	var sb strings.Builder
	sb.WriteString("Contents\n\n")
	for i := 0; i < entries; i++ {
		fmt.Fprintf(&sb, "Chapter %d .......... %d\n", i+1, 10+i*10)
	}
	return sb.String()
}

func filler(n int) []string {
	pages := make([]string, n)
	for i := range pages {
		pages[i] = fmt.Sprintf("body text for page %d, nothing remarkable about it.", i+1)
	}
	return pages
}

func TestClassifyTextbookWithTOC(t *testing.T) {
	pages := filler(120)
	pages[1] = tocPage(8)
	res := Classify(&textdoc.Document{Title: "big", Pages: pages})
	require.Equal(t, model.ClassTextbook, res.Classification)
	require.Equal(t, 0.9, res.Confidence)
}

func TestClassifyShortTextbookWithTOC(t *testing.T) {
	pages := filler(50)
	pages[1] = tocPage(5)
	res := Classify(&textdoc.Document{Title: "mid", Pages: pages})
	require.Equal(t, model.ClassTextbook, res.Classification)
	require.Equal(t, 0.7, res.Confidence)
}

func TestClassifyResearchPaper(t *testing.T) {
	pages := filler(12)
	pages[0] = "Some Study Title\n\nAbstract\n\nWe study a thing and report results."
	pages[11] = "References\n\n[1] A. Author. Some prior work. 2019."
	res := Classify(&textdoc.Document{Title: "paper", Pages: pages})
	require.Equal(t, model.ClassResearchPaper, res.Classification)
	require.Equal(t, 0.85, res.Confidence)
}

func TestClassifyDefaultsToStandaloneChapter(t *testing.T) {
	res := Classify(&textdoc.Document{Title: "short", Pages: filler(20)})
	require.Equal(t, model.ClassStandaloneChapter, res.Classification)
	require.Equal(t, 0.6, res.Confidence)

	res = Classify(&textdoc.Document{Title: "long", Pages: filler(90)})
	require.Equal(t, model.ClassStandaloneChapter, res.Classification)
	require.Equal(t, 0.3, res.Confidence)
}

func TestClassifyNeverFails(t *testing.T) {
	res := Classify(nil)
	require.Equal(t, model.ClassStandaloneChapter, res.Classification)
	require.Equal(t, 0.1, res.Confidence)

	res = Classify(&textdoc.Document{})
	require.Equal(t, model.ClassStandaloneChapter, res.Classification)
	require.Equal(t, 0.1, res.Confidence)
}
