package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/kvander/bookdex/internal/model"
	"github.com/kvander/bookdex/internal/pkg/dbutil"
	appErr "github.com/kvander/bookdex/internal/pkg/errors"
)

type ChapterRepo struct {
	db *sql.DB
}

func NewChapterRepo(db *sql.DB) *ChapterRepo {
	return &ChapterRepo{db: db}
}

var chapterColumns = []string{
	"id", "book_id", "title", "start_page", "end_page", "content", "content_hash",
	"detection_method", "detection_confidence", "embed_state",
	"is_duplicate", "duplicate_group_id", "preference_score", "ctime",
}

func (r *ChapterRepo) CreateBatch(ctx context.Context, chapters []*model.Chapter) error {
	if len(chapters) == 0 {
		return nil
	}
	data := make([]map[string]interface{}, 0, len(chapters))
	for _, ch := range chapters {
		data = append(data, map[string]interface{}{
			"id":                   ch.ID,
			"book_id":              ch.BookID,
			"title":                ch.Title,
			"start_page":           ch.StartPage,
			"end_page":             ch.EndPage,
			"content":              ch.Content,
			"content_hash":         ch.ContentHash,
			"detection_method":     ch.DetectionMethod,
			"detection_confidence": ch.DetectionConfidence,
			"embed_state":          ch.EmbedState,
			"is_duplicate":         ch.IsDuplicate,
			"duplicate_group_id":   nullableString(ch.DuplicateGroupID),
			"preference_score":     ch.PreferenceScore,
			"ctime":                ch.Ctime,
		})
	}
	sqlStr, args, err := builder.BuildInsert("chapters", data)
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

func (r *ChapterRepo) GetByID(ctx context.Context, chapterID string) (*model.Chapter, error) {
	sqlStr, args, err := builder.BuildSelect("chapters", map[string]interface{}{"id": chapterID}, chapterColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	ch, err := scanChapter(row)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (r *ChapterRepo) ListByBook(ctx context.Context, bookID string) ([]model.Chapter, error) {
	where := map[string]interface{}{
		"book_id":  bookID,
		"_orderby": "start_page asc",
	}
	return r.list(ctx, where)
}

func (r *ChapterRepo) ListByIDs(ctx context.Context, ids []string) ([]model.Chapter, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	where := map[string]interface{}{
		"id in": ids,
	}
	return r.list(ctx, where)
}

// ListPendingEmbed feeds the embedding sweep; oldest first so a crashed
// run is resumed from where it stopped.
func (r *ChapterRepo) ListPendingEmbed(ctx context.Context, limit uint) ([]model.Chapter, error) {
	where := map[string]interface{}{
		"embed_state": model.EmbedStatePending,
		"_orderby":    "ctime asc",
		"_limit":      []uint{0, limit},
	}
	return r.list(ctx, where)
}

func (r *ChapterRepo) ListByGroup(ctx context.Context, groupID string) ([]model.Chapter, error) {
	where := map[string]interface{}{
		"duplicate_group_id": groupID,
	}
	return r.list(ctx, where)
}

func (r *ChapterRepo) ListEmbeddedByBook(ctx context.Context, bookID string) ([]model.Chapter, error) {
	where := map[string]interface{}{
		"book_id":     bookID,
		"embed_state": model.EmbedStateDone,
		"_orderby":    "start_page asc",
	}
	return r.list(ctx, where)
}

func (r *ChapterRepo) list(ctx context.Context, where map[string]interface{}) ([]model.Chapter, error) {
	sqlStr, args, err := builder.BuildSelect("chapters", where, chapterColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chapters []model.Chapter
	for rows.Next() {
		ch, err := scanChapter(rows)
		if err != nil {
			return nil, err
		}
		chapters = append(chapters, *ch)
	}
	return chapters, rows.Err()
}

func (r *ChapterRepo) SetEmbedState(ctx context.Context, chapterID, state string) error {
	sqlStr, args, err := builder.BuildUpdate("chapters",
		map[string]interface{}{"id": chapterID},
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

func (r *ChapterRepo) GetEmbedding(ctx context.Context, chapterID string) ([]float32, error) {
	sqlStr, args := dbutil.Finalize(`SELECT embedding FROM chapters WHERE id=? AND embedding IS NOT NULL`, []interface{}{chapterID})
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var embedding pgvector.Vector
	if err := row.Scan(&embedding); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return embedding.Slice(), nil
}

// AssignDuplicateGroup stamps every member of a duplicate group. The
// canonical chapter keeps is_duplicate=false; content is never deleted.
func (r *ChapterRepo) AssignDuplicateGroup(ctx context.Context, groupID, canonicalID string, memberIDs []string) error {
	if len(memberIDs) == 0 {
		return nil
	}
	sqlStr, args, err := builder.BuildUpdate("chapters",
		map[string]interface{}{"id in": memberIDs},
		map[string]interface{}{"duplicate_group_id": groupID, "is_duplicate": true})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return err
	}
	sqlStr, args, err = builder.BuildUpdate("chapters",
		map[string]interface{}{"id": canonicalID},
		map[string]interface{}{"duplicate_group_id": groupID, "is_duplicate": false})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ChapterRepo) Progress(ctx context.Context, bookID string) (*model.BookProgress, error) {
	sqlStr, args := dbutil.Finalize(`
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE embed_state = 'done'),
			COUNT(*) FILTER (WHERE is_duplicate),
			COUNT(*) FILTER (WHERE embed_state = 'failed')
		FROM chapters WHERE book_id=?
	`, []interface{}{bookID})
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var p model.BookProgress
	if err := row.Scan(&p.TotalChapters, &p.ChaptersWithEmbedding, &p.DuplicatesFound, &p.FailedItems); err != nil {
		return nil, err
	}
	return &p, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChapter(row rowScanner) (*model.Chapter, error) {
	var ch model.Chapter
	var groupID sql.NullString
	err := row.Scan(&ch.ID, &ch.BookID, &ch.Title, &ch.StartPage, &ch.EndPage, &ch.Content, &ch.ContentHash,
		&ch.DetectionMethod, &ch.DetectionConfidence, &ch.EmbedState,
		&ch.IsDuplicate, &groupID, &ch.PreferenceScore, &ch.Ctime)
	if err != nil {
		return nil, err
	}
	ch.DuplicateGroupID = groupID.String
	return &ch, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
