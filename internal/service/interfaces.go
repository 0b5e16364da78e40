package service

import (
	"context"

	"github.com/xxxsen/ragcore/internal/index"
	"github.com/xxxsen/ragcore/internal/model"
	"github.com/xxxsen/ragcore/internal/repo"
)

// ChunkStore is the persistence surface for sources and chunks.
type ChunkStore interface {
	CreateSource(ctx context.Context, src *model.Source) error
	ListSources(ctx context.Context) ([]model.Source, error)
	DeleteSource(ctx context.Context, sourceID string) error
	CreateBatch(ctx context.Context, chunks []*model.Chunk) error
	GetByIDs(ctx context.Context, ids []string) ([]model.Chunk, error)
	ListPending(ctx context.Context, limit int) ([]model.Chunk, error)
	MarkIndexed(ctx context.Context, chunkID string, vectorID int64, mtime int64) error
	TombstoneBySource(ctx context.Context, sourceID string, mtime int64) ([]int64, error)
	CountIndexed(ctx context.Context) (int64, error)
}

// QueryStore persists the immutable per-request records.
type QueryStore interface {
	SaveQuery(ctx context.Context, q *model.Query) error
	GetQuery(ctx context.Context, queryID string) (*model.Query, error)
	SaveRetrievalResults(ctx context.Context, results []model.RetrievedChunk) error
	ListRetrievalResults(ctx context.Context, queryID string) ([]model.RetrievedChunk, error)
	SaveResponse(ctx context.Context, resp *model.Response) error
	GetResponse(ctx context.Context, queryID string) (*model.Response, error)
}

// FeedbackStore persists append-only feedback.
type FeedbackStore interface {
	Insert(ctx context.Context, fb *model.Feedback) error
	ListAfter(ctx context.Context, watermark int64, limit int) ([]repo.RatedFeedback, error)
	AggregateByVersion(ctx context.Context) ([]repo.RatingBucket, error)
}

// PolicyStore is the append-only policy version history.
type PolicyStore interface {
	Insert(ctx context.Context, pv *model.PolicyVersion) error
	Latest(ctx context.Context) (*model.PolicyVersion, error)
	GetByVersion(ctx context.Context, version int64) (*model.PolicyVersion, error)
	List(ctx context.Context, limit int) ([]model.PolicyVersion, error)
}

// VectorIndex is the search side of the vector index manager.
type VectorIndex interface {
	Insert(ctx context.Context, chunkID string, vector []float32, insertedAt int64) (int64, error)
	Remove(ctx context.Context, vectorID int64) error
	Search(queryVector []float32, k int, minScore float64) ([]index.Match, error)
	Rebuild(ctx context.Context) error
	LiveCount() int
}

// AIGateway is the boundary to the external embedding and generation models.
// *ai.Manager satisfies it.
type AIGateway interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	Generate(ctx context.Context, prompt string) (string, error)
}
