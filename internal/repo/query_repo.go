package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/xxxsen/ragcore/internal/model"
	appErr "github.com/xxxsen/ragcore/internal/pkg/errors"
)

type QueryRepo struct {
	db *sql.DB
}

func NewQueryRepo(db *sql.DB) *QueryRepo {
	return &QueryRepo{db: db}
}

func (r *QueryRepo) SaveQuery(ctx context.Context, q *model.Query) error {
	const query = `
		INSERT INTO queries (id, content, max_results, similarity_threshold, policy_version, ctime)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		q.ID, q.Content, q.MaxResults, q.SimilarityThreshold, q.PolicyVersion, q.Ctime)
	return err
}

func (r *QueryRepo) GetQuery(ctx context.Context, queryID string) (*model.Query, error) {
	const query = `
		SELECT id, content, max_results, similarity_threshold, policy_version, ctime
		FROM queries WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, queryID)
	var q model.Query
	if err := row.Scan(&q.ID, &q.Content, &q.MaxResults, &q.SimilarityThreshold, &q.PolicyVersion, &q.Ctime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &q, nil
}

func (r *QueryRepo) SaveRetrievalResults(ctx context.Context, results []model.RetrievedChunk) error {
	if len(results) == 0 {
		return nil
	}
	const query = `
		INSERT INTO retrieval_results (query_id, chunk_id, score, rank)
		VALUES ($1, $2, $3, $4)
	`
	for _, item := range results {
		if _, err := r.db.ExecContext(ctx, query, item.QueryID, item.ChunkID, item.Score, item.Rank); err != nil {
			return err
		}
	}
	return nil
}

func (r *QueryRepo) ListRetrievalResults(ctx context.Context, queryID string) ([]model.RetrievedChunk, error) {
	const query = `
		SELECT query_id, chunk_id, score, rank
		FROM retrieval_results WHERE query_id = $1 ORDER BY rank ASC
	`
	rows, err := r.db.QueryContext(ctx, query, queryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.RetrievedChunk
	for rows.Next() {
		var item model.RetrievedChunk
		if err := rows.Scan(&item.QueryID, &item.ChunkID, &item.Score, &item.Rank); err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

func (r *QueryRepo) SaveResponse(ctx context.Context, resp *model.Response) error {
	blob, err := json.Marshal(resp.ContextChunkIDs)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO responses (query_id, content, context_chunk_ids, ctime)
		VALUES ($1, $2, $3, $4)
	`
	_, err = r.db.ExecContext(ctx, query, resp.QueryID, resp.Content, string(blob), resp.Ctime)
	return err
}

func (r *QueryRepo) GetResponse(ctx context.Context, queryID string) (*model.Response, error) {
	const query = `
		SELECT query_id, content, context_chunk_ids, ctime
		FROM responses WHERE query_id = $1
	`
	row := r.db.QueryRowContext(ctx, query, queryID)
	var resp model.Response
	var blob string
	if err := row.Scan(&resp.QueryID, &resp.Content, &blob, &resp.Ctime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(blob), &resp.ContextChunkIDs); err != nil {
		return nil, err
	}
	return &resp, nil
}
