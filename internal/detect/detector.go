package detect

import (
	"context"
	"sort"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/kvander/bookdex/internal/model"
	"github.com/kvander/bookdex/internal/textdoc"
)

// Boundary is a detected chapter span, pages 1-based inclusive.
type Boundary struct {
	Title     string
	StartPage int
	EndPage   int
}

type Detection struct {
	Chapters   []Boundary
	Method     string
	Confidence float64
}

// start is a candidate chapter opening emitted by a strategy; end pages
// are derived once a tier wins.
type start struct {
	Title string
	Page  int
}

// Strategy is one detection tier. Tiers are mutually exclusive fallbacks:
// the first tier returning any starts wins outright, partial results are
// never merged across tiers.
type Strategy interface {
	Name() string
	Confidence() float64
	Detect(doc *textdoc.Document) []start
}

type Detector struct {
	strategies []Strategy
}

func NewDetector() *Detector {
	return &Detector{
		strategies: []Strategy{
			&tocStrategy{},
			&patternStrategy{},
			&headingStrategy{},
		},
	}
}

// Detect runs the tiers in order and returns the first non-empty result.
// It never fails: when every tier comes up empty the whole document
// becomes a single chapter at confidence zero.
func (d *Detector) Detect(ctx context.Context, doc *textdoc.Document) Detection {
	logger := logutil.GetLogger(ctx).With(zap.String("title", doc.Title))
	for _, strategy := range d.strategies {
		starts := strategy.Detect(doc)
		starts = normalizeStarts(starts, doc.PageCount())
		if len(starts) == 0 {
			continue
		}
		boundaries := toBoundaries(starts, doc.PageCount())
		logger.Info("chapter detection succeeded",
			zap.String("method", strategy.Name()),
			zap.Float64("confidence", strategy.Confidence()),
			zap.Int("chapters", len(boundaries)),
		)
		return Detection{
			Chapters:   boundaries,
			Method:     strategy.Name(),
			Confidence: strategy.Confidence(),
		}
	}
	logger.Info("no detection tier produced boundaries, falling back to whole document")
	title := doc.Title
	if title == "" {
		title = "Untitled"
	}
	return Detection{
		Chapters:   []Boundary{{Title: title, StartPage: 1, EndPage: doc.PageCount()}},
		Method:     model.DetectMethodWholeDocument,
		Confidence: 0,
	}
}

// normalizeStarts sorts by page, clamps out-of-range entries and merges
// adjacent near-duplicates from the same tier (two starts on the same or
// neighboring page describe one chapter opening, keep the first).
func normalizeStarts(starts []start, pageCount int) []start {
	valid := make([]start, 0, len(starts))
	for _, s := range starts {
		if s.Page < 1 || s.Page > pageCount {
			continue
		}
		valid = append(valid, s)
	}
	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Page < valid[j].Page
	})
	merged := make([]start, 0, len(valid))
	for _, s := range valid {
		if n := len(merged); n > 0 && s.Page-merged[n-1].Page <= 1 {
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func toBoundaries(starts []start, pageCount int) []Boundary {
	boundaries := make([]Boundary, 0, len(starts))
	for i, s := range starts {
		end := pageCount
		if i+1 < len(starts) {
			end = starts[i+1].Page - 1
		}
		if end < s.Page {
			end = s.Page
		}
		boundaries = append(boundaries, Boundary{Title: s.Title, StartPage: s.Page, EndPage: end})
	}
	return boundaries
}
