package job

import (
	"context"

	"github.com/xxxsen/ragcore/internal/service"
)

// ReinforceJob runs one policy learning step on schedule. The service's
// watermark makes overlapping triggers harmless.
type ReinforceJob struct {
	policies *service.PolicyService
}

func NewReinforceJob(policies *service.PolicyService) *ReinforceJob {
	return &ReinforceJob{policies: policies}
}

func (j *ReinforceJob) Name() string {
	return "policy_reinforce"
}

func (j *ReinforceJob) Run(ctx context.Context) error {
	_, _, err := j.policies.Reinforce(ctx)
	return err
}
