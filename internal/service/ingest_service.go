package service

import (
	"context"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragcore/internal/ai"
	"github.com/xxxsen/ragcore/internal/model"
	appErr "github.com/xxxsen/ragcore/internal/pkg/errors"
)

// IngestInput is one source document handed over by the ingestion
// collaborator.
type IngestInput struct {
	SourceID string
	Title    string
	Content  string
}

// IngestResult reports how far a source got through the pipeline. Chunks
// whose embedding failed stay pending and are retried by the backfill job.
type IngestResult struct {
	Source  *model.Source `json:"source"`
	Chunks  int           `json:"chunks"`
	Indexed int           `json:"indexed"`
	Pending int           `json:"pending"`
}

// IngestService writes Chunk Store entries and pushes their vectors into the
// index manager.
type IngestService struct {
	chunks  ChunkStore
	idx     VectorIndex
	chunker *ai.Chunker
	gateway AIGateway
}

func NewIngestService(chunks ChunkStore, idx VectorIndex, chunker *ai.Chunker, gateway AIGateway) *IngestService {
	return &IngestService{
		chunks:  chunks,
		idx:     idx,
		chunker: chunker,
		gateway: gateway,
	}
}

func (s *IngestService) IngestSource(ctx context.Context, input IngestInput) (*IngestResult, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, appErr.ErrInvalid
	}
	sourceID := strings.TrimSpace(input.SourceID)
	if sourceID == "" {
		sourceID = newID()
	}
	logger := logutil.GetLogger(ctx).With(zap.String("source_id", sourceID))

	now := time.Now().UnixMilli()
	source := &model.Source{
		ID:    sourceID,
		Title: strings.TrimSpace(input.Title),
		Ctime: now,
	}
	if err := s.chunks.CreateSource(ctx, source); err != nil {
		return nil, err
	}

	segments := s.chunker.Chunk(ctx, content)
	chunks := make([]*model.Chunk, 0, len(segments))
	for _, segment := range segments {
		chunks = append(chunks, &model.Chunk{
			ID:         newID(),
			SourceID:   sourceID,
			Ordinal:    segment.Ordinal,
			Content:    segment.Content,
			TokenCount: segment.TokenCount,
			Status:     model.ChunkStatusPending,
			Ctime:      now,
			Mtime:      now,
		})
	}
	if err := s.chunks.CreateBatch(ctx, chunks); err != nil {
		return nil, err
	}
	source.ChunkCount = len(chunks)

	indexed := 0
	for _, chunk := range chunks {
		if err := s.embedAndIndex(ctx, chunk); err != nil {
			logger.Warn("chunk embedding failed, left pending",
				zap.String("chunk_id", chunk.ID),
				zap.Int("ordinal", chunk.Ordinal),
				zap.Error(err),
			)
			continue
		}
		indexed++
	}
	logger.Info("source ingested",
		zap.Int("chunks", len(chunks)),
		zap.Int("indexed", indexed),
	)
	return &IngestResult{
		Source:  source,
		Chunks:  len(chunks),
		Indexed: indexed,
		Pending: len(chunks) - indexed,
	}, nil
}

// RemoveSource tombstones the source's chunks and their vectors. Vectors
// disappear from search immediately; the index structure sheds them at the
// next rebuild.
func (s *IngestService) RemoveSource(ctx context.Context, sourceID string) error {
	logger := logutil.GetLogger(ctx).With(zap.String("source_id", sourceID))
	if err := s.chunks.DeleteSource(ctx, sourceID); err != nil {
		return err
	}
	vectorIDs, err := s.chunks.TombstoneBySource(ctx, sourceID, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	for _, vectorID := range vectorIDs {
		if err := s.idx.Remove(ctx, vectorID); err != nil {
			logger.Error("remove vector failed", zap.Int64("vector_id", vectorID), zap.Error(err))
			return err
		}
	}
	logger.Info("source removed", zap.Int("vectors_tombstoned", len(vectorIDs)))
	return nil
}

func (s *IngestService) ListSources(ctx context.Context) ([]model.Source, error) {
	return s.chunks.ListSources(ctx)
}

// ProcessPendingEmbeddings retries chunks whose embedding failed at ingest.
func (s *IngestService) ProcessPendingEmbeddings(ctx context.Context, limit int) error {
	if limit <= 0 {
		limit = 100
	}
	pending, err := s.chunks.ListPending(ctx, limit)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	logger := logutil.GetLogger(ctx)
	processed := 0
	for i := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := pending[i]
		if err := s.embedAndIndex(ctx, &chunk); err != nil {
			logger.Warn("backfill embedding failed",
				zap.String("chunk_id", chunk.ID),
				zap.Error(err),
			)
			continue
		}
		processed++
	}
	logger.Info("pending embeddings processed", zap.Int("total", len(pending)), zap.Int("indexed", processed))
	return nil
}

// CheckConsistency compares indexed chunks against live index vectors. A
// divergence is a consistency fault: logged, never user-visible, and repaired
// by an immediate rebuild.
func (s *IngestService) CheckConsistency(ctx context.Context) error {
	indexed, err := s.chunks.CountIndexed(ctx)
	if err != nil {
		return err
	}
	live := int64(s.idx.LiveCount())
	if indexed == live {
		return nil
	}
	logutil.GetLogger(ctx).Error("vector index consistency fault",
		zap.Int64("indexed_chunks", indexed),
		zap.Int64("live_vectors", live),
	)
	return s.idx.Rebuild(ctx)
}

func (s *IngestService) embedAndIndex(ctx context.Context, chunk *model.Chunk) error {
	vector, err := s.gateway.Embed(ctx, chunk.Content, "RETRIEVAL_DOCUMENT")
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	vectorID, err := s.idx.Insert(ctx, chunk.ID, vector, now)
	if err != nil {
		return err
	}
	if err := s.chunks.MarkIndexed(ctx, chunk.ID, vectorID, now); err != nil {
		return err
	}
	chunk.VectorID = vectorID
	chunk.Status = model.ChunkStatusIndexed
	return nil
}
