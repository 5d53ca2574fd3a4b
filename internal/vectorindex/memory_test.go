package vectorindex

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/kvander/bookdex/internal/pkg/errors"
)

func TestMemoryIndexSearchOrdering(t *testing.T) {
	index := NewMemoryIndex(3)
	ctx := context.Background()
	require.NoError(t, index.Insert(ctx, "exact", []float32{1, 0, 0}))
	require.NoError(t, index.Insert(ctx, "close", []float32{0.9, 0.4, 0}))
	require.NoError(t, index.Insert(ctx, "far", []float32{0, 0, 1}))

	neighbors, err := index.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	require.Equal(t, "exact", neighbors[0].ID)
	require.Equal(t, "close", neighbors[1].ID)
	require.InDelta(t, 1.0, neighbors[0].Similarity, 1e-9)
}

func TestMemoryIndexRejectsWrongDimension(t *testing.T) {
	index := NewMemoryIndex(3)
	ctx := context.Background()
	err := index.Insert(ctx, "bad", []float32{1, 0})
	require.ErrorIs(t, err, appErr.ErrDimensionMismatch)
	_, err = index.Search(ctx, []float32{1, 0, 0, 0}, 5)
	require.ErrorIs(t, err, appErr.ErrDimensionMismatch)
}

func TestMemoryIndexRejectsDuplicateID(t *testing.T) {
	index := NewMemoryIndex(2)
	ctx := context.Background()
	require.NoError(t, index.Insert(ctx, "a", []float32{1, 0}))
	require.ErrorIs(t, index.Insert(ctx, "a", []float32{0, 1}), appErr.ErrConflict)
}

func TestMemoryIndexTieBreaksByID(t *testing.T) {
	index := NewMemoryIndex(2)
	ctx := context.Background()
	require.NoError(t, index.Insert(ctx, "b", []float32{1, 0}))
	require.NoError(t, index.Insert(ctx, "a", []float32{1, 0}))
	neighbors, err := index.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Equal(t, "a", neighbors[0].ID)
	require.Equal(t, "b", neighbors[1].ID)
}

func TestMemoryIndexConcurrentReadersDuringInserts(t *testing.T) {
	index := NewMemoryIndex(2)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := fmt.Sprintf("w%d-%d", i, j)
				_ = index.Insert(ctx, id, []float32{float32(j), 1})
			}
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = index.Search(ctx, []float32{1, 1}, 5)
			}
		}()
	}
	wg.Wait()

	neighbors, err := index.Search(ctx, []float32{1, 1}, 10)
	require.NoError(t, err)
	require.Len(t, neighbors, 10)
}

func TestCosine(t *testing.T) {
	require.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	require.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	require.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	require.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
	require.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 2}))
}
