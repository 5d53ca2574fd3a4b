package model

type Chunk struct {
	ID            string    `json:"id"`
	ChapterID     string    `json:"chapter_id"`
	Seq           int       `json:"seq"`
	Heading       string    `json:"heading"`
	Content       string    `json:"content"`
	TokenEstimate int       `json:"token_estimate"`
	Embedding     []float32 `json:"-"`
	EmbedState    string    `json:"embed_state"`
	Ctime         int64     `json:"ctime"`
}

type EmbeddingCache struct {
	ModelName   string
	ContentHash string
	Embedding   []float32
	Ctime       int64
}
