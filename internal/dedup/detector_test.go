package dedup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvander/bookdex/internal/model"
	appErr "github.com/kvander/bookdex/internal/pkg/errors"
	"github.com/kvander/bookdex/internal/vectorindex"
)

type fakeChapterStore struct {
	chapters map[string]*model.Chapter
	vectors  map[string][]float32
}

func newFakeStore() *fakeChapterStore {
	return &fakeChapterStore{
		chapters: make(map[string]*model.Chapter),
		vectors:  make(map[string][]float32),
	}
}

func (f *fakeChapterStore) add(ch model.Chapter, vec []float32) {
	ch.EmbedState = model.EmbedStateDone
	f.chapters[ch.ID] = &ch
	f.vectors[ch.ID] = vec
}

func (f *fakeChapterStore) ListEmbeddedByBook(ctx context.Context, bookID string) ([]model.Chapter, error) {
	var out []model.Chapter
	for _, ch := range f.chapters {
		if ch.BookID == bookID {
			out = append(out, *ch)
		}
	}
	return out, nil
}

func (f *fakeChapterStore) ListByIDs(ctx context.Context, ids []string) ([]model.Chapter, error) {
	var out []model.Chapter
	for _, id := range ids {
		if ch, ok := f.chapters[id]; ok {
			out = append(out, *ch)
		}
	}
	return out, nil
}

func (f *fakeChapterStore) ListByGroup(ctx context.Context, groupID string) ([]model.Chapter, error) {
	var out []model.Chapter
	for _, ch := range f.chapters {
		if ch.DuplicateGroupID == groupID {
			out = append(out, *ch)
		}
	}
	return out, nil
}

func (f *fakeChapterStore) GetEmbedding(ctx context.Context, chapterID string) ([]float32, error) {
	vec, ok := f.vectors[chapterID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return vec, nil
}

func (f *fakeChapterStore) AssignDuplicateGroup(ctx context.Context, groupID, canonicalID string, memberIDs []string) error {
	for _, id := range memberIDs {
		f.chapters[id].DuplicateGroupID = groupID
		f.chapters[id].IsDuplicate = true
	}
	f.chapters[canonicalID].DuplicateGroupID = groupID
	f.chapters[canonicalID].IsDuplicate = false
	return nil
}

const dim = 4

func buildIndex(t *testing.T, store *fakeChapterStore) vectorindex.Index {
	t.Helper()
	index := vectorindex.NewMemoryIndex(dim)
	for id, vec := range store.vectors {
		require.NoError(t, index.Insert(context.Background(), id, vec))
	}
	return index
}

func TestDetectorGroupsCrossBookDuplicates(t *testing.T) {
	store := newFakeStore()
	// ch-a and ch-b carry near-identical vectors across two books;
	// ch-c points elsewhere.
	store.add(model.Chapter{ID: "ch-a", BookID: "book-1", PreferenceScore: 3.0, Ctime: 100}, []float32{1, 0, 0, 0})
	store.add(model.Chapter{ID: "ch-b", BookID: "book-2", PreferenceScore: 2.0, Ctime: 200}, []float32{0.999, 0.04, 0, 0})
	store.add(model.Chapter{ID: "ch-c", BookID: "book-2", PreferenceScore: 2.0, Ctime: 300}, []float32{0, 1, 0, 0})

	d := NewDetector(store, buildIndex(t, store), Config{Threshold: 0.95, CandidateLimit: 10})
	require.NoError(t, d.Run(context.Background(), "book-2"))

	require.Equal(t, store.chapters["ch-a"].DuplicateGroupID, store.chapters["ch-b"].DuplicateGroupID)
	require.NotEmpty(t, store.chapters["ch-a"].DuplicateGroupID)
	require.False(t, store.chapters["ch-a"].IsDuplicate, "highest preference score is canonical")
	require.True(t, store.chapters["ch-b"].IsDuplicate)
	require.False(t, store.chapters["ch-c"].IsDuplicate)
	require.Empty(t, store.chapters["ch-c"].DuplicateGroupID)

	// Marking never removes chapters.
	require.Len(t, store.chapters, 3)
}

func TestDetectorIdempotent(t *testing.T) {
	store := newFakeStore()
	store.add(model.Chapter{ID: "ch-a", BookID: "book-1", PreferenceScore: 1.0, Ctime: 100}, []float32{1, 0, 0, 0})
	store.add(model.Chapter{ID: "ch-b", BookID: "book-2", PreferenceScore: 1.0, Ctime: 200}, []float32{1, 0.01, 0, 0})
	index := buildIndex(t, store)

	d := NewDetector(store, index, Config{Threshold: 0.95, CandidateLimit: 10})
	require.NoError(t, d.Run(context.Background(), "book-2"))
	firstGroup := store.chapters["ch-b"].DuplicateGroupID
	firstCanonical := store.chapters["ch-a"].IsDuplicate

	require.NoError(t, d.Run(context.Background(), "book-2"))
	require.Equal(t, firstGroup, store.chapters["ch-b"].DuplicateGroupID)
	require.Equal(t, firstCanonical, store.chapters["ch-a"].IsDuplicate)

	// Running from the other book's perspective converges on the same group.
	require.NoError(t, d.Run(context.Background(), "book-1"))
	require.Equal(t, firstGroup, store.chapters["ch-b"].DuplicateGroupID)
}

func TestDetectorTransitiveGrouping(t *testing.T) {
	store := newFakeStore()
	// a~b and b~c but a and c are just under the threshold directly.
	store.add(model.Chapter{ID: "ch-a", BookID: "book-1", PreferenceScore: 1.0, Ctime: 100}, []float32{1, 0, 0, 0})
	store.add(model.Chapter{ID: "ch-b", BookID: "book-1", PreferenceScore: 1.0, Ctime: 200}, []float32{0.97, 0.24, 0, 0})
	store.add(model.Chapter{ID: "ch-c", BookID: "book-1", PreferenceScore: 1.0, Ctime: 300}, []float32{0.88, 0.47, 0, 0})

	d := NewDetector(store, buildIndex(t, store), Config{Threshold: 0.95, CandidateLimit: 10})
	require.NoError(t, d.Run(context.Background(), "book-1"))

	group := store.chapters["ch-a"].DuplicateGroupID
	require.NotEmpty(t, group)
	require.Equal(t, group, store.chapters["ch-b"].DuplicateGroupID)
	require.Equal(t, group, store.chapters["ch-c"].DuplicateGroupID)

	canonicals := 0
	for _, ch := range store.chapters {
		if !ch.IsDuplicate {
			canonicals++
		}
	}
	require.Equal(t, 1, canonicals)
}

func TestDetectorTieBreaksByConfidenceBeforeAge(t *testing.T) {
	store := newFakeStore()
	// Same source-type weight; the older chapter has the weaker detection.
	store.add(model.Chapter{ID: "ch-lowconf", BookID: "book-1", PreferenceScore: 2.0, DetectionConfidence: 0.60, Ctime: 100}, []float32{1, 0, 0, 0})
	store.add(model.Chapter{ID: "ch-highconf", BookID: "book-1", PreferenceScore: 2.0, DetectionConfidence: 0.90, Ctime: 900}, []float32{1, 0.01, 0, 0})

	d := NewDetector(store, buildIndex(t, store), Config{Threshold: 0.95, CandidateLimit: 10})
	require.NoError(t, d.Run(context.Background(), "book-1"))
	require.False(t, store.chapters["ch-highconf"].IsDuplicate)
	require.True(t, store.chapters["ch-lowconf"].IsDuplicate)
}

func TestDetectorTieBreaksByAge(t *testing.T) {
	store := newFakeStore()
	store.add(model.Chapter{ID: "ch-young", BookID: "book-1", PreferenceScore: 2.0, Ctime: 900}, []float32{1, 0, 0, 0})
	store.add(model.Chapter{ID: "ch-old", BookID: "book-1", PreferenceScore: 2.0, Ctime: 100}, []float32{1, 0.01, 0, 0})

	d := NewDetector(store, buildIndex(t, store), Config{Threshold: 0.95, CandidateLimit: 10})
	require.NoError(t, d.Run(context.Background(), "book-1"))
	require.False(t, store.chapters["ch-old"].IsDuplicate)
	require.True(t, store.chapters["ch-young"].IsDuplicate)
}
