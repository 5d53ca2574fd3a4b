package vectorindex

import (
	"context"
	"database/sql"
	"fmt"

	appErr "github.com/kvander/bookdex/internal/pkg/errors"
	"github.com/pgvector/pgvector-go"
)

type pgIndex struct {
	db        *sql.DB
	table     string
	dimension int
}

// NewPGIndex returns an index backed by a pgvector column on the given
// table. Rows are created by the repositories first; Insert attaches the
// vector to an existing row, and the HNSW index on the column makes
// Search approximate nearest-neighbor rather than a sequential scan.
func NewPGIndex(db *sql.DB, table string, dimension int) Index {
	return &pgIndex{db: db, table: table, dimension: dimension}
}

func (p *pgIndex) Dimension() int {
	return p.dimension
}

func (p *pgIndex) Insert(ctx context.Context, id string, vector []float32) error {
	if len(vector) != p.dimension {
		return fmt.Errorf("insert %s: got %d dims, index holds %d: %w", id, len(vector), p.dimension, appErr.ErrDimensionMismatch)
	}
	query := fmt.Sprintf(`UPDATE %s SET embedding = $1 WHERE id = $2 AND embedding IS NULL`, p.table)
	res, err := p.db.ExecContext(ctx, query, pgvector.NewVector(vector), id)
	if err != nil {
		return fmt.Errorf("attach vector to %s: %w", p.table, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach vector to %s: %w", p.table, err)
	}
	if affected == 0 {
		return fmt.Errorf("insert %s: row missing or already indexed: %w", id, appErr.ErrConflict)
	}
	return nil
}

func (p *pgIndex) Search(ctx context.Context, vector []float32, topK int) ([]Neighbor, error) {
	if len(vector) != p.dimension {
		return nil, fmt.Errorf("search: got %d dims, index holds %d: %w", len(vector), p.dimension, appErr.ErrDimensionMismatch)
	}
	if topK <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT id, 1 - (embedding <=> $1) AS similarity FROM %s WHERE embedding IS NOT NULL ORDER BY embedding <=> $1, id LIMIT $2`, p.table)
	rows, err := p.db.QueryContext(ctx, query, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("ann search on %s: %w", p.table, err)
	}
	defer rows.Close()
	var neighbors []Neighbor
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.ID, &n.Similarity); err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		neighbors = append(neighbors, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ann search on %s: %w", p.table, err)
	}
	return neighbors, nil
}
