package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"
	"github.com/lib/pq"

	"github.com/kvander/bookdex/internal/model"
	"github.com/kvander/bookdex/internal/pkg/dbutil"
	appErr "github.com/kvander/bookdex/internal/pkg/errors"
)

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

var chunkColumns = []string{
	"id", "chapter_id", "seq", "heading", "content", "token_estimate", "embed_state", "ctime",
}

func (r *ChunkRepo) CreateBatch(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	data := make([]map[string]interface{}, 0, len(chunks))
	for _, c := range chunks {
		data = append(data, map[string]interface{}{
			"id":             c.ID,
			"chapter_id":     c.ChapterID,
			"seq":            c.Seq,
			"heading":        c.Heading,
			"content":        c.Content,
			"token_estimate": c.TokenEstimate,
			"embed_state":    c.EmbedState,
			"ctime":          c.Ctime,
		})
	}
	sqlStr, args, err := builder.BuildInsert("chunks", data)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *ChunkRepo) ListByChapter(ctx context.Context, chapterID string) ([]model.Chunk, error) {
	where := map[string]interface{}{
		"chapter_id": chapterID,
		"_orderby":   "seq asc",
	}
	return r.list(ctx, where)
}

func (r *ChunkRepo) ListPendingEmbed(ctx context.Context, limit uint) ([]model.Chunk, error) {
	where := map[string]interface{}{
		"embed_state": model.EmbedStatePending,
		"_orderby":    "ctime asc",
		"_limit":      []uint{0, limit},
	}
	return r.list(ctx, where)
}

func (r *ChunkRepo) list(ctx context.Context, where map[string]interface{}) ([]model.Chunk, error) {
	sqlStr, args, err := builder.BuildSelect("chunks", where, chunkColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chunks []model.Chunk
	for rows.Next() {
		var c model.Chunk
		if err := rows.Scan(&c.ID, &c.ChapterID, &c.Seq, &c.Heading, &c.Content, &c.TokenEstimate, &c.EmbedState, &c.Ctime); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (r *ChunkRepo) SetEmbedState(ctx context.Context, chunkID, state string) error {
	sqlStr, args, err := builder.BuildUpdate("chunks",
		map[string]interface{}{"id": chunkID},
		map[string]interface{}{"embed_state": state})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

// SimilarChunks returns per-chapter best chunk similarity for the given
// query vector, restricted to the supplied chapters. Used to refine
// chapter ranking when long chapters were split for embedding.
func (r *ChunkRepo) SimilarChunks(ctx context.Context, queryVec interface{}, chapterIDs []string) (map[string]float64, error) {
	if len(chapterIDs) == 0 {
		return map[string]float64{}, nil
	}
	const sqlStr = `
		SELECT chapter_id, MAX(1 - (embedding <=> $1))
		FROM chunks
		WHERE embedding IS NOT NULL AND chapter_id = ANY($2)
		GROUP BY chapter_id
	`
	rows, err := r.db.QueryContext(ctx, sqlStr, queryVec, pq.Array(chapterIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	best := make(map[string]float64, len(chapterIDs))
	for rows.Next() {
		var id string
		var sim float64
		if err := rows.Scan(&id, &sim); err != nil {
			return nil, err
		}
		best[id] = sim
	}
	return best, rows.Err()
}
