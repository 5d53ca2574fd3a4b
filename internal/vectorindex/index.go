package vectorindex

import (
	"context"
	"math"
)

type Neighbor struct {
	ID         string
	Similarity float64
}

// Index is an approximate nearest-neighbor structure over fixed-dimension
// vectors. Insert is the only mutation; re-embedding is logically new
// content and gets a new id. Implementations tolerate concurrent readers
// during inserts.
type Index interface {
	Dimension() int
	Insert(ctx context.Context, id string, vector []float32) error
	Search(ctx context.Context, vector []float32, topK int) ([]Neighbor, error)
}

// Cosine computes cosine similarity in float64 to avoid float32
// accumulation drift on long vectors.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
