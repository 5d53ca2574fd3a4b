package chunksplit

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 0, EstimateTokens(""))
	require.Equal(t, 1, EstimateTokens("ab"))
	require.Equal(t, 11, EstimateTokens(strings.Repeat("x", 30)))
}

func TestNeeded(t *testing.T) {
	s := New(Config{WordThreshold: 10})
	require.False(t, s.Needed("just a few words"))
	require.True(t, s.Needed(strings.Repeat("word ", 11)))
}

func TestSplitKeepsPiecesUnderHardLimit(t *testing.T) {
	// Roughly 9,123 estimated tokens of continuous text.
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 600)
	require.Greater(t, EstimateTokens(text), 9000)

	s := New(Config{TargetTokens: 1024, OverlapTokens: 128, HardTokenLimit: 8191})
	pieces := s.Split(text)
	require.NotEmpty(t, pieces)
	for _, p := range pieces {
		require.Less(t, p.TokenEstimate, 8191)
		require.Equal(t, EstimateTokens(p.Content), p.TokenEstimate)
	}
}

func TestTruncateToTokens(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 600)
	require.Greater(t, EstimateTokens(text), 9000)

	cut := TruncateToTokens(text, 8191-256)
	require.LessOrEqual(t, EstimateTokens(cut), 8191-256)
	require.True(t, strings.HasPrefix(text, cut))

	// Under-budget text passes through untouched.
	require.Equal(t, "short", TruncateToTokens("short", 100))
	require.Equal(t, "", TruncateToTokens("anything", 0))
}

func TestTruncateToTokensRespectsRuneBoundaries(t *testing.T) {
	text := strings.Repeat("日本語のテキスト。", 2000)
	cut := TruncateToTokens(text, 100)
	require.LessOrEqual(t, EstimateTokens(cut), 100)
	for _, r := range cut {
		require.NotEqual(t, '�', r)
	}
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	para := strings.Repeat("Sentence in the paragraph. ", 20)
	text := strings.Join([]string{para, para, para, para}, "\n\n")
	s := New(Config{TargetTokens: 200, OverlapTokens: 40, HardTokenLimit: 8191})
	pieces := s.Split(text)
	require.Greater(t, len(pieces), 1)
	for _, p := range pieces {
		require.LessOrEqual(t, p.TokenEstimate, 200+40+1)
	}
}

func TestSplitCarriesHeadingContext(t *testing.T) {
	body := strings.Repeat("Detail sentence about the topic. ", 40)
	text := "Skull Base Anatomy\n\n" + body + "\n\n" + body
	s := New(Config{TargetTokens: 150, OverlapTokens: 30, HardTokenLimit: 8191})
	pieces := s.Split(text)
	require.NotEmpty(t, pieces)
	for _, p := range pieces {
		require.Equal(t, "Skull Base Anatomy", p.Heading)
	}
}

func TestSplitOverlapCarriesTrailingText(t *testing.T) {
	var paras []string
	for i := 0; i < 12; i++ {
		paras = append(paras, strings.Repeat(fmt.Sprintf("Overlap probe sentence %c. ", 'a'+i), 6))
	}
	s := New(Config{TargetTokens: 160, OverlapTokens: 80, HardTokenLimit: 8191})
	pieces := s.Split(strings.Join(paras, "\n\n"))
	require.Greater(t, len(pieces), 1)
	for i := 1; i < len(pieces); i++ {
		prevTail := strings.TrimSpace(pieces[i-1].Content[len(pieces[i-1].Content)-25:])
		require.Contains(t, pieces[i].Content, prevTail)
	}
}
