package model

// PolicyVersion is one immutable generation-policy record. Versions are
// append-only; the highest version is the current policy.
//
// FeedbackWatermark is the ctime (unix millis) of the newest feedback entry
// consumed when this version was derived. Reinforcement only considers
// feedback past the watermark, which keeps repeated triggers idempotent.
type PolicyVersion struct {
	Version            int64              `json:"version"`
	TemplateID         string             `json:"template_id"`
	ContextTokenBudget int                `json:"context_token_budget"`
	SourceBias         map[string]float64 `json:"source_bias,omitempty"`
	FeedbackWatermark  int64              `json:"feedback_watermark"`
	Ctime              int64              `json:"ctime"`
}
