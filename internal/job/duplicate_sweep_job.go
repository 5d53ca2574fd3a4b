package job

import (
	"context"

	"github.com/kvander/bookdex/internal/service"
)

type DuplicateSweepJob struct {
	ingest *service.IngestService
	limit  uint
}

func NewDuplicateSweepJob(ingest *service.IngestService, limit uint) *DuplicateSweepJob {
	if limit == 0 {
		limit = 50
	}
	return &DuplicateSweepJob{ingest: ingest, limit: limit}
}

func (j *DuplicateSweepJob) Name() string {
	return "duplicate_sweep"
}

func (j *DuplicateSweepJob) Run(ctx context.Context) error {
	if j.ingest == nil {
		return nil
	}
	return j.ingest.RescanDuplicates(ctx, j.limit)
}
