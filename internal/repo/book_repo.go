package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/kvander/bookdex/internal/model"
	"github.com/kvander/bookdex/internal/pkg/dbutil"
	appErr "github.com/kvander/bookdex/internal/pkg/errors"
)

type BookRepo struct {
	db *sql.DB
}

func NewBookRepo(db *sql.DB) *BookRepo {
	return &BookRepo{db: db}
}

func (r *BookRepo) Create(ctx context.Context, book *model.Book) error {
	data := map[string]interface{}{
		"id":                        book.ID,
		"title":                     book.Title,
		"classification":            book.Classification,
		"classification_confidence": book.ClassificationConfidence,
		"processing_status":         book.ProcessingStatus,
		"total_chapters":            book.TotalChapters,
		"source_key":                book.SourceKey,
		"ctime":                     book.Ctime,
		"mtime":                     book.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("books", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *BookRepo) GetByID(ctx context.Context, bookID string) (*model.Book, error) {
	sqlStr, args := dbutil.Finalize(`
		SELECT id, title, classification, classification_confidence, processing_status, total_chapters, source_key, ctime, mtime
		FROM books WHERE id=?
	`, []interface{}{bookID})
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var book model.Book
	err := row.Scan(&book.ID, &book.Title, &book.Classification, &book.ClassificationConfidence,
		&book.ProcessingStatus, &book.TotalChapters, &book.SourceKey, &book.Ctime, &book.Mtime)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *BookRepo) UpdateStatus(ctx context.Context, bookID, status string, mtime int64) error {
	where := map[string]interface{}{
		"id": bookID,
	}
	update := map[string]interface{}{
		"processing_status": status,
		"mtime":             mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("books", where, update)
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

// FinishDetection records the chapter count and moves the book out of
// the pending state in one statement.
func (r *BookRepo) FinishDetection(ctx context.Context, bookID string, totalChapters int, status string, mtime int64) error {
	where := map[string]interface{}{
		"id": bookID,
	}
	update := map[string]interface{}{
		"total_chapters":    totalChapters,
		"processing_status": status,
		"mtime":             mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("books", where, update)
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

func (r *BookRepo) List(ctx context.Context, limit, offset uint) ([]model.Book, error) {
	where := map[string]interface{}{
		"_orderby": "ctime desc",
		"_limit":   []uint{offset, limit},
	}
	sqlStr, args, err := builder.BuildSelect("books", where,
		[]string{"id", "title", "classification", "classification_confidence", "processing_status", "total_chapters", "source_key", "ctime", "mtime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var books []model.Book
	for rows.Next() {
		var book model.Book
		if err := rows.Scan(&book.ID, &book.Title, &book.Classification, &book.ClassificationConfidence,
			&book.ProcessingStatus, &book.TotalChapters, &book.SourceKey, &book.Ctime, &book.Mtime); err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}
