package job

import (
	"context"

	"github.com/xxxsen/ragcore/internal/service"
)

// IndexRebuildJob compacts tombstoned vectors out of the in-memory index.
type IndexRebuildJob struct {
	idx service.VectorIndex
}

func NewIndexRebuildJob(idx service.VectorIndex) *IndexRebuildJob {
	return &IndexRebuildJob{idx: idx}
}

func (j *IndexRebuildJob) Name() string {
	return "index_rebuild"
}

func (j *IndexRebuildJob) Run(ctx context.Context) error {
	return j.idx.Rebuild(ctx)
}
