package repo

import (
	"context"
	"database/sql"

	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/ragcore/internal/index"
)

// VectorRepo is the durable backing of the vector index manager. Rows marked
// deleted stay until the next rebuild compacts them.
type VectorRepo struct {
	db *sql.DB
}

func NewVectorRepo(db *sql.DB) *VectorRepo {
	return &VectorRepo{db: db}
}

var _ index.Store = (*VectorRepo)(nil)

func (r *VectorRepo) Append(ctx context.Context, chunkID string, vector []float32, insertedAt int64) (int64, error) {
	const query = `
		INSERT INTO chunk_vectors (chunk_id, embedding, ctime)
		VALUES ($1, $2, $3)
		RETURNING vector_id
	`
	var vectorID int64
	err := r.db.QueryRowContext(ctx, query, chunkID, pgvector.NewVector(vector), insertedAt).Scan(&vectorID)
	if err != nil {
		return 0, err
	}
	return vectorID, nil
}

func (r *VectorRepo) MarkDeleted(ctx context.Context, vectorID int64) error {
	const query = `UPDATE chunk_vectors SET deleted = 1 WHERE vector_id = $1`
	_, err := r.db.ExecContext(ctx, query, vectorID)
	return err
}

func (r *VectorRepo) DeleteTombstoned(ctx context.Context) (int64, error) {
	const query = `DELETE FROM chunk_vectors WHERE deleted = 1`
	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *VectorRepo) LoadLive(ctx context.Context) ([]index.Record, error) {
	const query = `
		SELECT vector_id, chunk_id, embedding, ctime
		FROM chunk_vectors
		WHERE deleted = 0
		ORDER BY vector_id ASC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []index.Record
	for rows.Next() {
		var rec index.Record
		var embedding pgvector.Vector
		if err := rows.Scan(&rec.VectorID, &rec.ChunkID, &embedding, &rec.InsertedAt); err != nil {
			return nil, err
		}
		rec.Vector = embedding.Slice()
		records = append(records, rec)
	}
	return records, rows.Err()
}
