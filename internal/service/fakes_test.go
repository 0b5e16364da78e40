package service

import (
	"context"
	"sort"
	"sync"

	"github.com/xxxsen/ragcore/internal/model"
	appErr "github.com/xxxsen/ragcore/internal/pkg/errors"
	"github.com/xxxsen/ragcore/internal/repo"
)

type memChunkStore struct {
	mu      sync.Mutex
	sources map[string]*model.Source
	chunks  map[string]*model.Chunk
}

func newMemChunkStore() *memChunkStore {
	return &memChunkStore{
		sources: make(map[string]*model.Source),
		chunks:  make(map[string]*model.Chunk),
	}
}

func (s *memChunkStore) CreateSource(ctx context.Context, src *model.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[src.ID]; ok {
		return appErr.ErrConflict
	}
	clone := *src
	s.sources[src.ID] = &clone
	return nil
}

func (s *memChunkStore) ListSources(ctx context.Context) ([]model.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Source, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, *src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memChunkStore) DeleteSource(ctx context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[sourceID]; !ok {
		return appErr.ErrNotFound
	}
	delete(s.sources, sourceID)
	return nil
}

func (s *memChunkStore) CreateBatch(ctx context.Context, chunks []*model.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chunk := range chunks {
		clone := *chunk
		s.chunks[chunk.ID] = &clone
	}
	return nil
}

func (s *memChunkStore) GetByIDs(ctx context.Context, ids []string) ([]model.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Chunk
	for _, id := range ids {
		if chunk, ok := s.chunks[id]; ok {
			out = append(out, *chunk)
		}
	}
	return out, nil
}

func (s *memChunkStore) ListPending(ctx context.Context, limit int) ([]model.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Chunk
	for _, chunk := range s.chunks {
		if chunk.Status == model.ChunkStatusPending {
			out = append(out, *chunk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memChunkStore) MarkIndexed(ctx context.Context, chunkID string, vectorID int64, mtime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chunk, ok := s.chunks[chunkID]
	if !ok {
		return appErr.ErrNotFound
	}
	chunk.VectorID = vectorID
	chunk.Status = model.ChunkStatusIndexed
	chunk.Mtime = mtime
	return nil
}

func (s *memChunkStore) TombstoneBySource(ctx context.Context, sourceID string, mtime int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var vectorIDs []int64
	for _, chunk := range s.chunks {
		if chunk.SourceID != sourceID || chunk.Status == model.ChunkStatusTombstoned {
			continue
		}
		if chunk.Status == model.ChunkStatusIndexed {
			vectorIDs = append(vectorIDs, chunk.VectorID)
		}
		chunk.Status = model.ChunkStatusTombstoned
		chunk.Mtime = mtime
	}
	return vectorIDs, nil
}

func (s *memChunkStore) CountIndexed(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, chunk := range s.chunks {
		if chunk.Status == model.ChunkStatusIndexed {
			count++
		}
	}
	return count, nil
}

type memQueryStore struct {
	mu        sync.Mutex
	queries   map[string]*model.Query
	retrieved map[string][]model.RetrievedChunk
	responses map[string]*model.Response
}

func newMemQueryStore() *memQueryStore {
	return &memQueryStore{
		queries:   make(map[string]*model.Query),
		retrieved: make(map[string][]model.RetrievedChunk),
		responses: make(map[string]*model.Response),
	}
}

func (s *memQueryStore) SaveQuery(ctx context.Context, q *model.Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *q
	s.queries[q.ID] = &clone
	return nil
}

func (s *memQueryStore) GetQuery(ctx context.Context, queryID string) (*model.Query, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queries[queryID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	clone := *q
	return &clone, nil
}

func (s *memQueryStore) SaveRetrievalResults(ctx context.Context, results []model.RetrievedChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, res := range results {
		s.retrieved[res.QueryID] = append(s.retrieved[res.QueryID], res)
	}
	return nil
}

func (s *memQueryStore) ListRetrievalResults(ctx context.Context, queryID string) ([]model.RetrievedChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]model.RetrievedChunk{}, s.retrieved[queryID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (s *memQueryStore) SaveResponse(ctx context.Context, resp *model.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *resp
	s.responses[resp.QueryID] = &clone
	return nil
}

func (s *memQueryStore) GetResponse(ctx context.Context, queryID string) (*model.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.responses[queryID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	clone := *resp
	return &clone, nil
}

type memFeedbackStore struct {
	mu      sync.Mutex
	items   []model.Feedback
	queries *memQueryStore
}

func newMemFeedbackStore(queries *memQueryStore) *memFeedbackStore {
	return &memFeedbackStore{queries: queries}
}

func (s *memFeedbackStore) Insert(ctx context.Context, fb *model.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, *fb)
	return nil
}

func (s *memFeedbackStore) ListAfter(ctx context.Context, watermark int64, limit int) ([]repo.RatedFeedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repo.RatedFeedback
	for _, fb := range s.items {
		if fb.Ctime <= watermark {
			continue
		}
		version := int64(0)
		if q, ok := s.queries.queries[fb.QueryID]; ok {
			version = q.PolicyVersion
		}
		out = append(out, repo.RatedFeedback{Feedback: fb, PolicyVersion: version})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Feedback.Ctime < out[j].Feedback.Ctime })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memFeedbackStore) AggregateByVersion(ctx context.Context) ([]repo.RatingBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type key struct {
		version int64
		rating  int
	}
	counts := make(map[key]int64)
	for _, fb := range s.items {
		version := int64(0)
		if q, ok := s.queries.queries[fb.QueryID]; ok {
			version = q.PolicyVersion
		}
		counts[key{version, fb.Rating}]++
	}
	out := make([]repo.RatingBucket, 0, len(counts))
	for k, count := range counts {
		out = append(out, repo.RatingBucket{PolicyVersion: k.version, Rating: k.rating, Count: count})
	}
	return out, nil
}

type memPolicyStore struct {
	mu       sync.Mutex
	versions []*model.PolicyVersion
}

func newMemPolicyStore() *memPolicyStore {
	return &memPolicyStore{}
}

func (s *memPolicyStore) Insert(ctx context.Context, pv *model.PolicyVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pv.Version = int64(len(s.versions) + 1)
	clone := *pv
	s.versions = append(s.versions, &clone)
	return nil
}

func (s *memPolicyStore) Latest(ctx context.Context) (*model.PolicyVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.versions) == 0 {
		return nil, appErr.ErrNotFound
	}
	clone := *s.versions[len(s.versions)-1]
	return &clone, nil
}

func (s *memPolicyStore) GetByVersion(ctx context.Context, version int64) (*model.PolicyVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pv := range s.versions {
		if pv.Version == version {
			clone := *pv
			return &clone, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (s *memPolicyStore) List(ctx context.Context, limit int) ([]model.PolicyVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.PolicyVersion, 0, len(s.versions))
	for i := len(s.versions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.versions[i])
	}
	return out, nil
}

// fakeGateway returns canned vectors and answers, with optional scripted
// failures to exercise retry paths.
type fakeGateway struct {
	mu            sync.Mutex
	vectors       map[string][]float32
	defaultVector []float32
	answer        string
	embedFails    int
	generateFails int
	embedCalls    int
	generateCalls int
}

func newFakeGateway(dim int) *fakeGateway {
	vector := make([]float32, dim)
	vector[0] = 1
	return &fakeGateway{
		vectors:       make(map[string][]float32),
		defaultVector: vector,
		answer:        "generated answer",
	}
}

func (g *fakeGateway) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.embedCalls++
	if g.embedFails > 0 {
		g.embedFails--
		return nil, appErr.ErrInternal
	}
	if vector, ok := g.vectors[text]; ok {
		return vector, nil
	}
	return g.defaultVector, nil
}

func (g *fakeGateway) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generateCalls++
	if g.generateFails > 0 {
		g.generateFails--
		return "", appErr.ErrInternal
	}
	return g.answer, nil
}
