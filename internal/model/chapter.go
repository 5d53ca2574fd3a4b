package model

const (
	DetectMethodTOC           = "toc"
	DetectMethodPattern       = "pattern"
	DetectMethodHeading       = "heading"
	DetectMethodWholeDocument = "whole_document"
)

const (
	EmbedStatePending = "pending"
	EmbedStateDone    = "done"
	EmbedStateFailed  = "failed"
)

type Chapter struct {
	ID                  string    `json:"id"`
	BookID              string    `json:"book_id"`
	Title               string    `json:"title"`
	StartPage           int       `json:"start_page"`
	EndPage             int       `json:"end_page"`
	Content             string    `json:"content"`
	ContentHash         string    `json:"content_hash"`
	DetectionMethod     string    `json:"detection_method"`
	DetectionConfidence float64   `json:"detection_confidence"`
	Embedding           []float32 `json:"-"`
	EmbedState          string    `json:"embed_state"`
	IsDuplicate         bool      `json:"is_duplicate"`
	DuplicateGroupID    string    `json:"duplicate_group_id,omitempty"`
	PreferenceScore     float64   `json:"preference_score"`
	Ctime               int64     `json:"ctime"`
}

type SearchResult struct {
	ChapterID string  `json:"chapter_id"`
	Title     string  `json:"title"`
	Score     float64 `json:"score"`
	Snippet   string  `json:"snippet"`
}
