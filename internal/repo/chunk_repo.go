package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/ragcore/internal/model"
	"github.com/xxxsen/ragcore/internal/pkg/dbutil"
	appErr "github.com/xxxsen/ragcore/internal/pkg/errors"
)

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

func (r *ChunkRepo) CreateSource(ctx context.Context, src *model.Source) error {
	data := map[string]interface{}{
		"id":    src.ID,
		"title": src.Title,
		"ctime": src.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("sources", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	if dbutil.IsConflict(err) {
		return appErr.ErrConflict
	}
	return err
}

func (r *ChunkRepo) ListSources(ctx context.Context) ([]model.Source, error) {
	const query = `
		SELECT s.id, s.title, s.ctime, COUNT(c.id)
		FROM sources s
		LEFT JOIN chunks c ON c.source_id = s.id AND c.status != 'tombstoned'
		GROUP BY s.id, s.title, s.ctime
		ORDER BY s.ctime DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sources []model.Source
	for rows.Next() {
		var src model.Source
		if err := rows.Scan(&src.ID, &src.Title, &src.Ctime, &src.ChunkCount); err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (r *ChunkRepo) DeleteSource(ctx context.Context, sourceID string) error {
	const query = `DELETE FROM sources WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, sourceID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *ChunkRepo) CreateBatch(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	data := make([]map[string]interface{}, 0, len(chunks))
	for _, chunk := range chunks {
		data = append(data, map[string]interface{}{
			"id":          chunk.ID,
			"source_id":   chunk.SourceID,
			"ordinal":     chunk.Ordinal,
			"content":     chunk.Content,
			"token_count": chunk.TokenCount,
			"status":      string(chunk.Status),
			"ctime":       chunk.Ctime,
			"mtime":       chunk.Mtime,
		})
	}
	sqlStr, args, err := builder.BuildInsert("chunks", data)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ChunkRepo) GetByIDs(ctx context.Context, ids []string) ([]model.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	where := map[string]interface{}{
		"id in": ids,
	}
	sqlStr, args, err := builder.BuildSelect("chunks", where, chunkColumns())
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return r.queryChunks(ctx, sqlStr, args...)
}

func (r *ChunkRepo) ListBySource(ctx context.Context, sourceID string) ([]model.Chunk, error) {
	where := map[string]interface{}{
		"source_id": sourceID,
		"_orderby":  "ordinal asc",
	}
	sqlStr, args, err := builder.BuildSelect("chunks", where, chunkColumns())
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return r.queryChunks(ctx, sqlStr, args...)
}

func (r *ChunkRepo) ListPending(ctx context.Context, limit int) ([]model.Chunk, error) {
	where := map[string]interface{}{
		"status":   string(model.ChunkStatusPending),
		"_orderby": "ctime asc",
		"_limit":   []uint{0, uint(limit)},
	}
	sqlStr, args, err := builder.BuildSelect("chunks", where, chunkColumns())
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return r.queryChunks(ctx, sqlStr, args...)
}

func (r *ChunkRepo) MarkIndexed(ctx context.Context, chunkID string, vectorID int64, mtime int64) error {
	const query = `
		UPDATE chunks SET vector_id = $1, status = 'indexed', mtime = $2
		WHERE id = $3 AND status = 'pending'
	`
	_, err := r.db.ExecContext(ctx, query, vectorID, mtime, chunkID)
	return err
}

// TombstoneBySource soft-deletes all chunks of a source and returns the
// vector ids that must be removed from the index.
func (r *ChunkRepo) TombstoneBySource(ctx context.Context, sourceID string, mtime int64) ([]int64, error) {
	const query = `
		UPDATE chunks SET status = 'tombstoned', mtime = $1
		WHERE source_id = $2 AND status != 'tombstoned'
		RETURNING vector_id
	`
	rows, err := r.db.QueryContext(ctx, query, mtime, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var vectorIDs []int64
	for rows.Next() {
		var vectorID sql.NullInt64
		if err := rows.Scan(&vectorID); err != nil {
			return nil, err
		}
		if vectorID.Valid {
			vectorIDs = append(vectorIDs, vectorID.Int64)
		}
	}
	return vectorIDs, rows.Err()
}

func (r *ChunkRepo) CountIndexed(ctx context.Context) (int64, error) {
	const query = `SELECT COUNT(*) FROM chunks WHERE status = 'indexed'`
	var count int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func chunkColumns() []string {
	return []string{"id", "source_id", "ordinal", "content", "token_count", "vector_id", "status", "ctime", "mtime"}
}

func (r *ChunkRepo) queryChunks(ctx context.Context, sqlStr string, args ...interface{}) ([]model.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chunks []model.Chunk
	for rows.Next() {
		var chunk model.Chunk
		var vectorID sql.NullInt64
		var status string
		if err := rows.Scan(&chunk.ID, &chunk.SourceID, &chunk.Ordinal, &chunk.Content,
			&chunk.TokenCount, &vectorID, &status, &chunk.Ctime, &chunk.Mtime); err != nil {
			return nil, err
		}
		if vectorID.Valid {
			chunk.VectorID = vectorID.Int64
		}
		chunk.Status = model.ChunkStatus(status)
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}
