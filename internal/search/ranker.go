package search

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/kvander/bookdex/internal/model"
)

// Candidate is one chapter pulled from the ANN stage, carrying the
// similarity signals the ranker fuses.
type Candidate struct {
	Chapter         model.Chapter
	Similarity      float64
	ChunkSimilarity float64
	HasChunks       bool
}

type Weights struct {
	Vector   float64
	Text     float64
	Metadata float64
}

type Ranker struct {
	weights Weights
	now     func() time.Time
}

func NewRanker(weights Weights) *Ranker {
	if weights.Vector == 0 && weights.Text == 0 && weights.Metadata == 0 {
		weights = Weights{Vector: 0.70, Text: 0.20, Metadata: 0.10}
	}
	return &Ranker{weights: weights, now: time.Now}
}

// Rank fuses vector similarity, keyword relevance and metadata into one
// composite score per candidate and returns results in descending score
// order. Ties fall back to chapter id so a fixed corpus and query always
// produce the same ordering.
func (r *Ranker) Rank(query string, candidates []Candidate) []model.SearchResult {
	terms := tokenize(query)
	phrase := strings.ToLower(strings.TrimSpace(query))
	now := r.now().UnixMilli()

	results := make([]model.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		semantic := c.Similarity
		if c.HasChunks && c.ChunkSimilarity > semantic {
			semantic = c.ChunkSimilarity
		}
		score := r.weights.Vector*semantic +
			r.weights.Text*textRelevance(terms, phrase, &c.Chapter) +
			r.weights.Metadata*metadataBoost(&c.Chapter, now)
		results = append(results, model.SearchResult{
			ChapterID: c.Chapter.ID,
			Title:     c.Chapter.Title,
			Score:     score,
			Snippet:   snippet(c.Chapter.Content, terms),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChapterID < results[j].ChapterID
	})
	return results
}

// textRelevance blends the keyword-overlap ratio with an exact-phrase
// bonus and a title-match bonus. The bonuses are separate shares rather
// than additions to the ratio, so a full-overlap chapter without a title
// match still ranks below one whose title carries the query.
func textRelevance(terms []string, phrase string, ch *model.Chapter) float64 {
	if len(terms) == 0 {
		return 0
	}
	title := strings.ToLower(ch.Title)
	content := strings.ToLower(ch.Content)
	matched := 0
	titleMatched := 0
	for _, term := range terms {
		inTitle := strings.Contains(title, term)
		if inTitle {
			titleMatched++
		}
		if inTitle || strings.Contains(content, term) {
			matched++
		}
	}
	score := 0.6 * float64(matched) / float64(len(terms))
	if phrase != "" && len(terms) > 1 {
		if strings.Contains(title, phrase) {
			score += 0.25
		} else if strings.Contains(content, phrase) {
			score += 0.15
		}
	}
	if titleMatched == len(terms) {
		score += 0.15
	}
	return score
}

// metadataBoost folds uniqueness, detection quality and recency into a
// 0..1 signal. Non-canonical duplicates lose the uniqueness share, which
// down-ranks them without hiding their content.
func metadataBoost(ch *model.Chapter, nowMilli int64) float64 {
	boost := 0.0
	if !ch.IsDuplicate {
		boost += 0.4
	}
	boost += 0.3 * ch.DetectionConfidence
	boost += 0.3 * recency(ch.Ctime, nowMilli)
	return boost
}

// recency decays linearly over a year; anything older contributes zero.
func recency(ctime, nowMilli int64) float64 {
	const yearMilli = 365 * 24 * int64(time.Hour/time.Millisecond)
	age := nowMilli - ctime
	if age <= 0 {
		return 1
	}
	if age >= yearMilli {
		return 0
	}
	return 1 - float64(age)/float64(yearMilli)
}

func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	seen := make(map[string]bool, len(fields))
	var terms []string
	for _, f := range fields {
		if len(f) < 2 || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

const snippetRadius = 120

// snippet returns a window around the first matched term, or the leading
// text when nothing matches.
func snippet(content string, terms []string) string {
	lower := strings.ToLower(content)
	pos := -1
	for _, term := range terms {
		if idx := strings.Index(lower, term); idx >= 0 && (pos < 0 || idx < pos) {
			pos = idx
		}
	}
	start := 0
	if pos > snippetRadius {
		start = pos - snippetRadius
	}
	end := start + 2*snippetRadius
	if end > len(content) {
		end = len(content)
	}
	for start > 0 && start < len(content) && !isBoundary(content[start]) {
		start++
	}
	for end > start && end < len(content) && !isBoundary(content[end-1]) {
		end--
	}
	out := strings.TrimSpace(content[start:end])
	if start > 0 {
		out = "…" + out
	}
	if end < len(content) {
		out += "…"
	}
	return out
}

func isBoundary(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t'
}
