package dedup

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/xxxsen/common/logutil"

	"github.com/kvander/bookdex/internal/model"
	"github.com/kvander/bookdex/internal/vectorindex"
)

// ChapterStore is the slice of the chapter repository the detector needs.
type ChapterStore interface {
	ListEmbeddedByBook(ctx context.Context, bookID string) ([]model.Chapter, error)
	ListByIDs(ctx context.Context, ids []string) ([]model.Chapter, error)
	ListByGroup(ctx context.Context, groupID string) ([]model.Chapter, error)
	GetEmbedding(ctx context.Context, chapterID string) ([]float32, error)
	AssignDuplicateGroup(ctx context.Context, groupID, canonicalID string, memberIDs []string) error
}

type Config struct {
	Threshold      float64
	CandidateLimit int
}

type Detector struct {
	chapters ChapterStore
	index    vectorindex.Index
	cfg      Config
}

func NewDetector(chapters ChapterStore, index vectorindex.Index, cfg Config) *Detector {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.95
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 30
	}
	return &Detector{chapters: chapters, index: index, cfg: cfg}
}

// Run compares every embedded chapter of the book against the whole
// corpus and stamps duplicate groups. Similarity is transitive for
// grouping: if A matches B and B matches C, all three share a group.
// Group ids derive from membership, so re-running is idempotent, and
// duplicates are only marked, never removed.
func (d *Detector) Run(ctx context.Context, bookID string) error {
	chapters, err := d.chapters.ListEmbeddedByBook(ctx, bookID)
	if err != nil {
		return fmt.Errorf("list embedded chapters: %w", err)
	}
	uf := newUnionFind()
	for i := range chapters {
		ch := &chapters[i]
		vector, err := d.chapters.GetEmbedding(ctx, ch.ID)
		if err != nil {
			logutil.GetLogger(ctx).Warn("skip chapter without vector", zap.String("chapter_id", ch.ID), zap.Error(err))
			continue
		}
		neighbors, err := d.index.Search(ctx, vector, d.cfg.CandidateLimit)
		if err != nil {
			return fmt.Errorf("neighbor search for %s: %w", ch.ID, err)
		}
		for _, n := range neighbors {
			if n.ID == ch.ID || n.Similarity < d.cfg.Threshold {
				continue
			}
			uf.union(ch.ID, n.ID)
		}
	}

	for _, members := range uf.groups() {
		if err := d.stampGroup(ctx, members); err != nil {
			return err
		}
	}
	return nil
}

func (d *Detector) stampGroup(ctx context.Context, memberIDs []string) error {
	members, err := d.chapters.ListByIDs(ctx, memberIDs)
	if err != nil {
		return fmt.Errorf("load group members: %w", err)
	}
	// Fold in chapters that an earlier run already grouped with any
	// member, so groups merge instead of flapping between runs.
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		seen[m.ID] = true
	}
	for _, m := range members {
		if m.DuplicateGroupID == "" {
			continue
		}
		prior, err := d.chapters.ListByGroup(ctx, m.DuplicateGroupID)
		if err != nil {
			return fmt.Errorf("load prior group %s: %w", m.DuplicateGroupID, err)
		}
		for _, p := range prior {
			if !seen[p.ID] {
				seen[p.ID] = true
				members = append(members, p)
			}
		}
	}
	if len(members) < 2 {
		return nil
	}

	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	groupID := members[0].ID
	canonical := pickCanonical(members)

	ids := make([]string, 0, len(members))
	for _, m := range members {
		if m.ID != canonical.ID {
			ids = append(ids, m.ID)
		}
	}
	if err := d.chapters.AssignDuplicateGroup(ctx, groupID, canonical.ID, ids); err != nil {
		return fmt.Errorf("stamp group %s: %w", groupID, err)
	}
	logutil.GetLogger(ctx).Info("duplicate group stamped",
		zap.String("group_id", groupID),
		zap.String("canonical", canonical.ID),
		zap.Int("members", len(members)))
	return nil
}

// pickCanonical prefers the member with the highest preference score;
// ties fall to detection confidence, then the oldest, then the smallest
// id, so the choice is stable.
func pickCanonical(members []model.Chapter) model.Chapter {
	best := members[0]
	for _, m := range members[1:] {
		if canonicalLess(best, m) {
			best = m
		}
	}
	return best
}

func canonicalLess(a, b model.Chapter) bool {
	if a.PreferenceScore != b.PreferenceScore {
		return a.PreferenceScore < b.PreferenceScore
	}
	if a.DetectionConfidence != b.DetectionConfidence {
		return a.DetectionConfidence < b.DetectionConfidence
	}
	if a.Ctime != b.Ctime {
		return a.Ctime > b.Ctime
	}
	return a.ID > b.ID
}

type unionFind struct {
	parent map[string]string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string)}
}

func (u *unionFind) find(x string) string {
	p, ok := u.parent[x]
	if !ok {
		u.parent[x] = x
		return x
	}
	if p == x {
		return x
	}
	root := u.find(p)
	u.parent[x] = root
	return root
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		u.parent[rb] = ra
		return
	}
	u.parent[ra] = rb
}

func (u *unionFind) groups() [][]string {
	byRoot := make(map[string][]string)
	for x := range u.parent {
		root := u.find(x)
		byRoot[root] = append(byRoot[root], x)
	}
	var out [][]string
	for _, members := range byRoot {
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		out = append(out, members)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
