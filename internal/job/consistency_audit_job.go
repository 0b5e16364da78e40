package job

import (
	"context"

	"github.com/xxxsen/ragcore/internal/service"
)

// ConsistencyAuditJob cross-checks the chunk store against the live index
// and triggers a repair rebuild on divergence.
type ConsistencyAuditJob struct {
	ingest *service.IngestService
}

func NewConsistencyAuditJob(ingest *service.IngestService) *ConsistencyAuditJob {
	return &ConsistencyAuditJob{ingest: ingest}
}

func (j *ConsistencyAuditJob) Name() string {
	return "consistency_audit"
}

func (j *ConsistencyAuditJob) Run(ctx context.Context) error {
	return j.ingest.CheckConsistency(ctx)
}
