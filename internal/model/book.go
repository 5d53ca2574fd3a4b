package model

const (
	ClassTextbook          = "textbook"
	ClassStandaloneChapter = "standalone_chapter"
	ClassResearchPaper     = "research_paper"
)

const (
	BookStatusPending    = "pending"
	BookStatusProcessing = "processing"
	BookStatusCompleted  = "completed"
	BookStatusFailed     = "failed"
)

type Book struct {
	ID                       string  `json:"id"`
	Title                    string  `json:"title"`
	Classification           string  `json:"classification"`
	ClassificationConfidence float64 `json:"classification_confidence"`
	ProcessingStatus         string  `json:"processing_status"`
	TotalChapters            int     `json:"total_chapters"`
	SourceKey                string  `json:"source_key"`
	Ctime                    int64   `json:"ctime"`
	Mtime                    int64   `json:"mtime"`
}

type BookProgress struct {
	TotalChapters         int    `json:"total_chapters"`
	ChaptersWithEmbedding int    `json:"chapters_with_embeddings"`
	DuplicatesFound       int    `json:"duplicates_found"`
	FailedItems           int    `json:"failed_items"`
	ProcessingStatus      string `json:"processing_status"`
}
