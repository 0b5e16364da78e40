package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/xxxsen/ragcore/internal/model"
	appErr "github.com/xxxsen/ragcore/internal/pkg/errors"
)

type PolicyRepo struct {
	db *sql.DB
}

func NewPolicyRepo(db *sql.DB) *PolicyRepo {
	return &PolicyRepo{db: db}
}

// Insert appends a new policy version and fills in the assigned version id.
func (r *PolicyRepo) Insert(ctx context.Context, pv *model.PolicyVersion) error {
	bias := pv.SourceBias
	if bias == nil {
		bias = map[string]float64{}
	}
	blob, err := json.Marshal(bias)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO policy_versions (template_id, context_token_budget, source_bias, feedback_watermark, ctime)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING version
	`
	return r.db.QueryRowContext(ctx, query,
		pv.TemplateID, pv.ContextTokenBudget, string(blob), pv.FeedbackWatermark, pv.Ctime,
	).Scan(&pv.Version)
}

func (r *PolicyRepo) Latest(ctx context.Context) (*model.PolicyVersion, error) {
	const query = `
		SELECT version, template_id, context_token_budget, source_bias, feedback_watermark, ctime
		FROM policy_versions ORDER BY version DESC LIMIT 1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query))
}

func (r *PolicyRepo) GetByVersion(ctx context.Context, version int64) (*model.PolicyVersion, error) {
	const query = `
		SELECT version, template_id, context_token_budget, source_bias, feedback_watermark, ctime
		FROM policy_versions WHERE version = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, version))
}

func (r *PolicyRepo) List(ctx context.Context, limit int) ([]model.PolicyVersion, error) {
	const query = `
		SELECT version, template_id, context_token_budget, source_bias, feedback_watermark, ctime
		FROM policy_versions ORDER BY version DESC LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var versions []model.PolicyVersion
	for rows.Next() {
		var pv model.PolicyVersion
		var blob string
		if err := rows.Scan(&pv.Version, &pv.TemplateID, &pv.ContextTokenBudget, &blob, &pv.FeedbackWatermark, &pv.Ctime); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(blob), &pv.SourceBias); err != nil {
			return nil, err
		}
		versions = append(versions, pv)
	}
	return versions, rows.Err()
}

func (r *PolicyRepo) scanOne(row *sql.Row) (*model.PolicyVersion, error) {
	var pv model.PolicyVersion
	var blob string
	if err := row.Scan(&pv.Version, &pv.TemplateID, &pv.ContextTokenBudget, &blob, &pv.FeedbackWatermark, &pv.Ctime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(blob), &pv.SourceBias); err != nil {
		return nil, err
	}
	return &pv, nil
}
