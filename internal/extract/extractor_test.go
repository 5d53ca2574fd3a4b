package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvander/bookdex/internal/detect"
	"github.com/kvander/bookdex/internal/textdoc"
)

func TestNormalizeTextCollapsesWhitespace(t *testing.T) {
	raw := "First   line\twith gaps\n\n\nSecond  paragraph\x00 here  "
	got := NormalizeText(raw)
	require.Equal(t, "First line with gaps\n\nSecond paragraph here", got)
}

func TestContentHashDeterministic(t *testing.T) {
	text := strings.Repeat("a meaningful run of chapter text. ", 10)
	h1 := ContentHash("Title", 1, 10, text)
	h2 := ContentHash("Title", 1, 10, text)
	require.Equal(t, h1, h2)

	// Above the near-empty cutoff the hash depends on text only.
	h3 := ContentHash("Other Title", 5, 20, text)
	require.Equal(t, h1, h3)
}

func TestNearEmptyChaptersHashDifferently(t *testing.T) {
	h1 := ContentHash("Cover", 1, 1, "")
	h2 := ContentHash("Index", 310, 310, "")
	require.NotEqual(t, h1, h2)
}

func TestExtractValidatesPageRange(t *testing.T) {
	doc := textdoc.Parse("t", []byte("a\fb\fc"))
	_, err := Extract(doc, detect.Boundary{Title: "bad", StartPage: 2, EndPage: 9})
	require.Error(t, err)
	_, err = Extract(doc, detect.Boundary{Title: "bad", StartPage: 0, EndPage: 1})
	require.Error(t, err)
	_, err = Extract(doc, detect.Boundary{Title: "bad", StartPage: 3, EndPage: 2})
	require.Error(t, err)
}

func TestExtractProducesNormalizedHash(t *testing.T) {
	doc := textdoc.Parse("t", []byte("Some   chapter text that runs long enough to avoid the near-empty path entirely.\fsecond page of the same chapter."))
	ext, err := Extract(doc, detect.Boundary{Title: "One", StartPage: 1, EndPage: 2})
	require.NoError(t, err)
	require.Contains(t, ext.NormalizedText, "Some chapter text")
	require.Equal(t, ContentHash("One", 1, 2, ext.NormalizedText), ext.ContentHash)
}
