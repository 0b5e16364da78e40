package job

import (
	"context"

	"github.com/xxxsen/ragcore/internal/service"
)

const backfillBatchSize = 200

// EmbeddingBackfillJob retries chunks stuck in pending after an embedding
// outage during ingest.
type EmbeddingBackfillJob struct {
	ingest *service.IngestService
}

func NewEmbeddingBackfillJob(ingest *service.IngestService) *EmbeddingBackfillJob {
	return &EmbeddingBackfillJob{ingest: ingest}
}

func (j *EmbeddingBackfillJob) Name() string {
	return "embedding_backfill"
}

func (j *EmbeddingBackfillJob) Run(ctx context.Context) error {
	return j.ingest.ProcessPendingEmbeddings(ctx, backfillBatchSize)
}
