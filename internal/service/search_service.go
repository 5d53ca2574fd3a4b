package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/kvander/bookdex/internal/ai"
	"github.com/kvander/bookdex/internal/model"
	appErr "github.com/kvander/bookdex/internal/pkg/errors"
	"github.com/kvander/bookdex/internal/search"
	"github.com/kvander/bookdex/internal/vectorindex"
)

type chapterLoader interface {
	ListByIDs(ctx context.Context, ids []string) ([]model.Chapter, error)
}

type chunkScorer interface {
	SimilarChunks(ctx context.Context, queryVec interface{}, chapterIDs []string) (map[string]float64, error)
}

type SearchService struct {
	chapters       chapterLoader
	chunks         chunkScorer
	index          vectorindex.Index
	embedder       ai.IEmbedder
	ranker         *search.Ranker
	candidateLimit int
}

func NewSearchService(chapters chapterLoader, chunks chunkScorer, index vectorindex.Index, embedder ai.IEmbedder, ranker *search.Ranker, candidateLimit int) *SearchService {
	if candidateLimit <= 0 {
		candidateLimit = 30
	}
	return &SearchService{
		chapters:       chapters,
		chunks:         chunks,
		index:          index,
		embedder:       embedder,
		ranker:         ranker,
		candidateLimit: candidateLimit,
	}
}

// Search answers a text query, optionally with a caller-supplied query
// vector so collaborators that already embedded the query skip the
// provider round-trip.
func (s *SearchService) Search(ctx context.Context, query string, queryVec []float32) ([]model.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query: %w", appErr.ErrInvalid)
	}
	if queryVec == nil {
		vec, err := s.embedder.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		queryVec = vec
	}
	if len(queryVec) != s.index.Dimension() {
		return nil, fmt.Errorf("query vector has %d dims, index holds %d: %w",
			len(queryVec), s.index.Dimension(), appErr.ErrDimensionMismatch)
	}

	neighbors, err := s.index.Search(ctx, queryVec, s.candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("ann search: %w", err)
	}
	if len(neighbors) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(neighbors))
	similarity := make(map[string]float64, len(neighbors))
	for _, n := range neighbors {
		ids = append(ids, n.ID)
		similarity[n.ID] = n.Similarity
	}
	chapters, err := s.chapters.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	chunkSims := map[string]float64{}
	if s.chunks != nil {
		chunkSims, err = s.chunks.SimilarChunks(ctx, pgvector.NewVector(queryVec), ids)
		if err != nil {
			return nil, fmt.Errorf("chunk refinement: %w", err)
		}
	}

	candidates := make([]search.Candidate, 0, len(chapters))
	for _, ch := range chapters {
		chunkSim, hasChunks := chunkSims[ch.ID]
		candidates = append(candidates, search.Candidate{
			Chapter:         ch,
			Similarity:      similarity[ch.ID],
			ChunkSimilarity: chunkSim,
			HasChunks:       hasChunks,
		})
	}
	return s.ranker.Rank(query, candidates), nil
}
