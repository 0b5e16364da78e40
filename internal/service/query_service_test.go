package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragcore/internal/config"
	"github.com/xxxsen/ragcore/internal/index"
	"github.com/xxxsen/ragcore/internal/model"
	appErr "github.com/xxxsen/ragcore/internal/pkg/errors"
)

const testDim = 4

type queryFixture struct {
	chunks   *memChunkStore
	queries  *memQueryStore
	policies *PolicyService
	idx      *index.Manager
	gateway  *fakeGateway
	svc      *QueryService
}

func newQueryFixture(t *testing.T) *queryFixture {
	t.Helper()
	chunks := newMemChunkStore()
	queries := newMemQueryStore()
	policyStore := newMemPolicyStore()
	feedback := newMemFeedbackStore(queries)
	policies := NewPolicyService(policyStore, feedback, config.PolicyConfig{
		InitialTemplateID:    "default",
		InitialContextBudget: 1200,
		Templates:            []string{"default", "concise", "grounded"},
		MinContextBudget:     400,
		MaxContextBudget:     4000,
		BudgetStep:           200,
	}, config.ReinforceConfig{RatingFloor: 2.5, MinSamples: 10})
	require.NoError(t, policies.Init(context.Background()))

	gateway := newFakeGateway(testDim)
	idx := index.NewManager(testDim, 256, nil)
	svc := NewQueryService(chunks, queries, policies, idx, gateway, config.QueryConfig{
		DefaultTopK:      5,
		DefaultThreshold: 0.1,
		MaxQueryChars:    2000,
		EmbedRetries:     3,
		CallTimeout:      5,
	})
	return &queryFixture{
		chunks:   chunks,
		queries:  queries,
		policies: policies,
		idx:      idx,
		gateway:  gateway,
		svc:      svc,
	}
}

func (f *queryFixture) addChunk(t *testing.T, id, sourceID string, ordinal, tokens int, vector []float32) {
	t.Helper()
	ctx := context.Background()
	chunk := &model.Chunk{
		ID:         id,
		SourceID:   sourceID,
		Ordinal:    ordinal,
		Content:    "content of " + id,
		TokenCount: tokens,
		Status:     model.ChunkStatusPending,
	}
	require.NoError(t, f.chunks.CreateBatch(ctx, []*model.Chunk{chunk}))
	vectorID, err := f.idx.Insert(ctx, id, vector, time.Now().UnixMilli())
	require.NoError(t, err)
	require.NoError(t, f.chunks.MarkIndexed(ctx, id, vectorID, time.Now().UnixMilli()))
}

func TestSubmitQueryRetrievesBestMatchesInOrder(t *testing.T) {
	f := newQueryFixture(t)
	f.addChunk(t, "near", "s1", 0, 50, []float32{1, 0, 0, 0})
	f.addChunk(t, "mid", "s1", 1, 50, []float32{1, 1, 0, 0})
	f.addChunk(t, "far", "s2", 0, 50, []float32{0, 1, 0, 0})

	two := 2
	result, err := f.svc.SubmitQuery(context.Background(), QueryInput{Text: "hello", MaxResults: &two})
	require.NoError(t, err)
	require.Len(t, result.Retrieved, 2)
	require.Equal(t, "near", result.Retrieved[0].ChunkID)
	require.Equal(t, "mid", result.Retrieved[1].ChunkID)
	require.Equal(t, 0, result.Retrieved[0].Rank)
	require.Equal(t, 1, result.Retrieved[1].Rank)
	require.Equal(t, "generated answer", result.Response.Content)
	require.Equal(t, []string{"near", "mid"}, result.Response.ContextChunkIDs)

	// Everything persisted and readable back.
	loaded, err := f.svc.GetResult(context.Background(), result.Query.ID)
	require.NoError(t, err)
	require.Equal(t, result.Query.ID, loaded.Query.ID)
	require.Len(t, loaded.Retrieved, 2)
	require.Equal(t, "generated answer", loaded.Response.Content)
}

func TestSubmitQueryEmptyIndexDegradesToNoContext(t *testing.T) {
	f := newQueryFixture(t)
	result, err := f.svc.SubmitQuery(context.Background(), QueryInput{Text: "anything there?"})
	require.NoError(t, err)
	require.Empty(t, result.Retrieved)
	require.Empty(t, result.Response.ContextChunkIDs)
	require.Equal(t, "generated answer", result.Response.Content)
}

func TestSubmitQueryRejectsBlankAndOversized(t *testing.T) {
	f := newQueryFixture(t)
	_, err := f.svc.SubmitQuery(context.Background(), QueryInput{Text: "   "})
	require.ErrorIs(t, err, appErr.ErrInvalidQuery)

	long := make([]byte, 3000)
	for i := range long {
		long[i] = 'a'
	}
	_, err = f.svc.SubmitQuery(context.Background(), QueryInput{Text: string(long)})
	require.ErrorIs(t, err, appErr.ErrInvalidQuery)
}

func TestSubmitQueryEmbedRetriesThenSucceeds(t *testing.T) {
	f := newQueryFixture(t)
	f.addChunk(t, "only", "s1", 0, 50, []float32{1, 0, 0, 0})
	f.gateway.embedFails = 2

	result, err := f.svc.SubmitQuery(context.Background(), QueryInput{Text: "retry me"})
	require.NoError(t, err)
	require.Equal(t, 3, f.gateway.embedCalls)
	require.Len(t, result.Retrieved, 1)
}

func TestSubmitQueryEmbedExhaustedUnavailable(t *testing.T) {
	f := newQueryFixture(t)
	f.gateway.embedFails = 10

	_, err := f.svc.SubmitQuery(context.Background(), QueryInput{Text: "retry me"})
	require.ErrorIs(t, err, appErr.ErrEmbeddingUnavailable)
	require.Equal(t, 3, f.gateway.embedCalls)
	// Nothing persisted for a failed pipeline.
	require.Empty(t, f.queries.queries)
}

func TestSubmitQueryGenerationExhaustedUnavailable(t *testing.T) {
	f := newQueryFixture(t)
	f.addChunk(t, "only", "s1", 0, 50, []float32{1, 0, 0, 0})
	f.gateway.generateFails = 10

	_, err := f.svc.SubmitQuery(context.Background(), QueryInput{Text: "gen fails"})
	require.ErrorIs(t, err, appErr.ErrGenerationUnavailable)
	require.Equal(t, 2, f.gateway.generateCalls)
	require.Empty(t, f.queries.queries)
}

func TestSubmitQueryCancelledPersistsNothing(t *testing.T) {
	f := newQueryFixture(t)
	f.addChunk(t, "only", "s1", 0, 50, []float32{1, 0, 0, 0})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.SubmitQuery(ctx, QueryInput{Text: "cancelled"})
	require.Error(t, err)
	require.Empty(t, f.queries.queries)
	require.Empty(t, f.queries.responses)
}

func TestSubmitQuerySkipsTombstonedChunks(t *testing.T) {
	f := newQueryFixture(t)
	f.addChunk(t, "keep", "s1", 0, 50, []float32{1, 0, 0, 0})
	f.addChunk(t, "gone", "s2", 0, 50, []float32{1, 0, 0, 0})
	_, err := f.chunks.TombstoneBySource(context.Background(), "s2", time.Now().UnixMilli())
	require.NoError(t, err)

	result, err := f.svc.SubmitQuery(context.Background(), QueryInput{Text: "q"})
	require.NoError(t, err)
	require.Len(t, result.Retrieved, 1)
	require.Equal(t, "keep", result.Retrieved[0].ChunkID)
}

func TestSubmitQuerySourceBiasReordersButKeepsRawScore(t *testing.T) {
	f := newQueryFixture(t)
	f.addChunk(t, "close", "plain", 0, 50, []float32{1, 0.2, 0, 0})
	f.addChunk(t, "boosted", "favored", 0, 50, []float32{1, 0.6, 0, 0})

	// Publish a biased policy version directly through the store.
	cur, err := f.policies.Current(context.Background())
	require.NoError(t, err)
	biased := &model.PolicyVersion{
		TemplateID:         cur.TemplateID,
		ContextTokenBudget: cur.ContextTokenBudget,
		SourceBias:         map[string]float64{"favored": 0.5},
		Ctime:              time.Now().UnixMilli(),
	}
	require.NoError(t, f.policies.store.Insert(context.Background(), biased))
	f.policies.current.Store(biased)

	result, err := f.svc.SubmitQuery(context.Background(), QueryInput{Text: "q"})
	require.NoError(t, err)
	require.Len(t, result.Retrieved, 2)
	// Context ordering follows the biased score.
	require.Equal(t, []string{"boosted", "close"}, result.Response.ContextChunkIDs)
	// Persisted scores stay raw cosine similarities.
	for _, item := range result.Retrieved {
		require.LessOrEqual(t, item.Score, 1.0)
	}
}
