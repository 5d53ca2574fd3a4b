package classifier

import (
	"strings"

	"github.com/kvander/bookdex/internal/model"
	"github.com/kvander/bookdex/internal/textdoc"
)

type Result struct {
	Classification string
	Confidence     float64
}

// Classify inspects document structure and labels it as textbook,
// standalone chapter or research paper. It never fails: anything it
// cannot place defaults to standalone_chapter with low confidence so the
// rest of the pipeline always has a defined path.
func Classify(doc *textdoc.Document) Result {
	if doc == nil || doc.PageCount() == 0 {
		return Result{Classification: model.ClassStandaloneChapter, Confidence: 0.1}
	}

	pages := doc.PageCount()
	hasTOC := doc.TOCPage() > 0
	density := doc.HeadingDensity()

	if looksLikePaper(doc) && pages <= 60 {
		confidence := 0.7
		if pages <= 40 {
			confidence = 0.85
		}
		return Result{Classification: model.ClassResearchPaper, Confidence: confidence}
	}

	if hasTOC && pages >= 100 {
		return Result{Classification: model.ClassTextbook, Confidence: 0.9}
	}
	if hasTOC && pages >= 40 {
		return Result{Classification: model.ClassTextbook, Confidence: 0.7}
	}
	if pages >= 150 && density >= 0.02 {
		// Long and structured but no machine-readable TOC.
		return Result{Classification: model.ClassTextbook, Confidence: 0.6}
	}

	if pages <= 60 {
		return Result{Classification: model.ClassStandaloneChapter, Confidence: 0.6}
	}
	return Result{Classification: model.ClassStandaloneChapter, Confidence: 0.3}
}

func looksLikePaper(doc *textdoc.Document) bool {
	limit := doc.PageCount()
	if limit > 3 {
		limit = 3
	}
	head := strings.ToLower(strings.Join(doc.Pages[:limit], "\n"))
	hasAbstract := strings.Contains(head, "abstract")
	tail := strings.ToLower(doc.Pages[doc.PageCount()-1])
	hasRefs := strings.Contains(tail, "references") || strings.Contains(tail, "bibliography")
	if doc.PageCount() >= 2 {
		tail2 := strings.ToLower(doc.Pages[doc.PageCount()-2])
		hasRefs = hasRefs || strings.Contains(tail2, "references")
	}
	return hasAbstract && hasRefs
}
