package model

// Query records one submitted question together with the effective retrieval
// parameters and the policy version active at execution time. Immutable.
type Query struct {
	ID                  string  `json:"id"`
	Content             string  `json:"content"`
	MaxResults          int     `json:"max_results"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	PolicyVersion       int64   `json:"policy_version"`
	Ctime               int64   `json:"ctime"`
}

// RetrievedChunk is one (chunk, score) pair of a retrieval result, ordered by
// rank ascending (best match first).
type RetrievedChunk struct {
	QueryID string  `json:"query_id"`
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

// Response is the generated answer for a query. ContextChunkIDs lists the
// chunks actually packed into the generation context, best score first.
type Response struct {
	QueryID         string   `json:"query_id"`
	Content         string   `json:"content"`
	ContextChunkIDs []string `json:"context_chunk_ids"`
	Ctime           int64    `json:"ctime"`
}
