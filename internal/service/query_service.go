package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragcore/internal/config"
	"github.com/xxxsen/ragcore/internal/index"
	"github.com/xxxsen/ragcore/internal/model"
	appErr "github.com/xxxsen/ragcore/internal/pkg/errors"
)

type pipelineStage string

const (
	stageReceived        pipelineStage = "received"
	stageEmbedding       pipelineStage = "embedding"
	stageSearching       pipelineStage = "searching"
	stageFiltering       pipelineStage = "filtering"
	stageContextAssembly pipelineStage = "context_assembly"
	stageGenerating      pipelineStage = "generating"
	stagePersisting      pipelineStage = "persisting"
	stageDone            pipelineStage = "done"
)

// QueryInput carries one submitted question. Nil optional parameters take
// configured defaults.
type QueryInput struct {
	Text                string
	MaxResults          *int
	SimilarityThreshold *float64
}

// QueryResult is the outcome of one pipeline run.
type QueryResult struct {
	Query     *model.Query
	Retrieved []model.RetrievedChunk
	Response  *model.Response
}

// QueryService drives one retrieval-augmented pipeline per request:
// received → embedding → searching → filtering → context_assembly →
// generating → persisting → done. Pipelines share nothing mutable beyond
// read access to the current policy and the vector index.
type QueryService struct {
	chunks   ChunkStore
	queries  QueryStore
	policies *PolicyService
	idx      VectorIndex
	gateway  AIGateway
	cfg      config.QueryConfig
}

func NewQueryService(chunks ChunkStore, queries QueryStore, policies *PolicyService, idx VectorIndex, gateway AIGateway, cfg config.QueryConfig) *QueryService {
	return &QueryService{
		chunks:   chunks,
		queries:  queries,
		policies: policies,
		idx:      idx,
		gateway:  gateway,
		cfg:      cfg,
	}
}

// SubmitQuery runs the full pipeline and returns the persisted result.
// Cancellation is observed between stages; a cancelled pipeline persists
// nothing.
func (s *QueryService) SubmitQuery(ctx context.Context, input QueryInput) (*QueryResult, error) {
	queryID := newID()
	logger := logutil.GetLogger(ctx).With(zap.String("query_id", queryID))

	// received
	text := strings.TrimSpace(input.Text)
	if text == "" || len(text) > s.cfg.MaxQueryChars {
		return nil, appErr.ErrInvalidQuery
	}
	maxResults := s.cfg.DefaultTopK
	if input.MaxResults != nil && *input.MaxResults > 0 {
		maxResults = *input.MaxResults
	}
	threshold := s.cfg.DefaultThreshold
	if input.SimilarityThreshold != nil {
		threshold = *input.SimilarityThreshold
	}
	policy, err := s.policies.Current(ctx)
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.Int64("policy_version", policy.Version))

	// embedding
	logger.Debug("stage transition", zap.String("stage", string(stageEmbedding)))
	queryVector, err := s.embedWithRetry(ctx, text)
	if err != nil {
		return nil, s.errored(logger, stageEmbedding, err)
	}

	// searching
	logger.Debug("stage transition", zap.String("stage", string(stageSearching)))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matches, err := s.idx.Search(queryVector, maxResults, threshold)
	if err != nil {
		if !errors.Is(err, appErr.ErrIndexNotReady) {
			return nil, s.errored(logger, stageSearching, err)
		}
		// An empty index is not a pipeline failure; degrade to a
		// context-free answer.
		matches = nil
	}

	// filtering
	logger.Debug("stage transition", zap.String("stage", string(stageFiltering)), zap.Int("matches", len(matches)))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scored, retrieved, err := s.resolveChunks(ctx, queryID, policy, matches)
	if err != nil {
		return nil, s.errored(logger, stageFiltering, err)
	}

	// context_assembly
	packed := PackContext(policy.ContextTokenBudget, OrderForContext(scored))
	contexts := make([]string, 0, len(packed))
	contextChunkIDs := make([]string, 0, len(packed))
	for _, item := range packed {
		contexts = append(contexts, item.Chunk.Content)
		contextChunkIDs = append(contextChunkIDs, item.Chunk.ID)
	}
	logger.Debug("stage transition",
		zap.String("stage", string(stageContextAssembly)),
		zap.Int("packed", len(packed)),
		zap.Int("budget", policy.ContextTokenBudget),
	)

	// generating
	prompt := BuildPrompt(policy.TemplateID, text, contexts)
	generated, err := s.generateWithRetry(ctx, prompt)
	if err != nil {
		return nil, s.errored(logger, stageGenerating, err)
	}

	// persisting
	logger.Debug("stage transition", zap.String("stage", string(stagePersisting)))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	query := &model.Query{
		ID:                  queryID,
		Content:             text,
		MaxResults:          maxResults,
		SimilarityThreshold: threshold,
		PolicyVersion:       policy.Version,
		Ctime:               now,
	}
	response := &model.Response{
		QueryID:         queryID,
		Content:         generated,
		ContextChunkIDs: contextChunkIDs,
		Ctime:           now,
	}
	if err := s.queries.SaveQuery(ctx, query); err != nil {
		return nil, s.errored(logger, stagePersisting, err)
	}
	if err := s.queries.SaveRetrievalResults(ctx, retrieved); err != nil {
		return nil, s.errored(logger, stagePersisting, err)
	}
	if err := s.queries.SaveResponse(ctx, response); err != nil {
		return nil, s.errored(logger, stagePersisting, err)
	}

	logger.Info("query pipeline finished",
		zap.String("stage", string(stageDone)),
		zap.Int("retrieved", len(retrieved)),
		zap.Int("context_chunks", len(contextChunkIDs)),
	)
	return &QueryResult{Query: query, Retrieved: retrieved, Response: response}, nil
}

// GetResult loads a finished pipeline run by query id.
func (s *QueryService) GetResult(ctx context.Context, queryID string) (*QueryResult, error) {
	query, err := s.queries.GetQuery(ctx, queryID)
	if err != nil {
		return nil, err
	}
	retrieved, err := s.queries.ListRetrievalResults(ctx, queryID)
	if err != nil {
		return nil, err
	}
	response, err := s.queries.GetResponse(ctx, queryID)
	if err != nil {
		return nil, err
	}
	return &QueryResult{Query: query, Retrieved: retrieved, Response: response}, nil
}

// resolveChunks maps search hits to chunk records, re-checking that each
// chunk is still indexed (its source may have been removed since the vector
// went in). It returns ranked inputs for assembly and the raw retrieval rows
// for persistence.
func (s *QueryService) resolveChunks(ctx context.Context, queryID string, policy *model.PolicyVersion, matches []index.Match) ([]ScoredChunk, []model.RetrievedChunk, error) {
	if len(matches) == 0 {
		return nil, nil, nil
	}
	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, match.ChunkID)
	}
	chunks, err := s.chunks.GetByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[string]model.Chunk, len(chunks))
	for _, chunk := range chunks {
		byID[chunk.ID] = chunk
	}
	var scored []ScoredChunk
	var retrieved []model.RetrievedChunk
	for _, match := range matches {
		chunk, ok := byID[match.ChunkID]
		if !ok || chunk.Status != model.ChunkStatusIndexed {
			continue
		}
		ranked := match.Score
		if bias, ok := policy.SourceBias[chunk.SourceID]; ok {
			ranked += bias
		}
		scored = append(scored, ScoredChunk{Chunk: chunk, Score: match.Score, Ranked: ranked})
		retrieved = append(retrieved, model.RetrievedChunk{
			QueryID: queryID,
			ChunkID: chunk.ID,
			Score:   match.Score,
			Rank:    len(retrieved),
		})
	}
	return scored, retrieved, nil
}

func (s *QueryService) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := retryWithBackoff(ctx, s.cfg.EmbedRetries, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.CallTimeout)*time.Second)
		defer cancel()
		res, err := s.gateway.Embed(callCtx, text, "RETRIEVAL_QUERY")
		if err != nil {
			return err
		}
		vector = res
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, appErr.ErrEmbeddingUnavailable
	}
	return vector, nil
}

func (s *QueryService) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	var text string
	err := retryWithBackoff(ctx, 2, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.CallTimeout)*time.Second)
		defer cancel()
		res, err := s.gateway.Generate(callCtx, prompt)
		if err != nil {
			return err
		}
		text = res
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", appErr.ErrGenerationUnavailable
	}
	return text, nil
}

func (s *QueryService) errored(logger *zap.Logger, stage pipelineStage, err error) error {
	logger.Error("query pipeline errored", zap.String("stage", string(stage)), zap.Error(err))
	return err
}
