package job

import (
	"context"

	"github.com/kvander/bookdex/internal/service"
)

type EmbeddingSweepJob struct {
	ingest *service.IngestService
	limit  uint
}

func NewEmbeddingSweepJob(ingest *service.IngestService, limit uint) *EmbeddingSweepJob {
	if limit == 0 {
		limit = 200
	}
	return &EmbeddingSweepJob{ingest: ingest, limit: limit}
}

func (j *EmbeddingSweepJob) Name() string {
	return "embedding_sweep"
}

func (j *EmbeddingSweepJob) Run(ctx context.Context) error {
	if j.ingest == nil {
		return nil
	}
	return j.ingest.ProcessPendingEmbeddings(ctx, j.limit)
}
