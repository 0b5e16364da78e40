package model

type ChunkStatus string

const (
	ChunkStatusPending    ChunkStatus = "pending"
	ChunkStatusIndexed    ChunkStatus = "indexed"
	ChunkStatusTombstoned ChunkStatus = "tombstoned"
)

// Chunk is the unit of embedding and retrieval. Content is immutable once
// created; only vector_id and status change over the chunk lifecycle.
type Chunk struct {
	ID         string      `json:"id"`
	SourceID   string      `json:"source_id"`
	Ordinal    int         `json:"ordinal"`
	Content    string      `json:"content"`
	TokenCount int         `json:"token_count"`
	VectorID   int64       `json:"vector_id,omitempty"`
	Status     ChunkStatus `json:"status"`
	Ctime      int64       `json:"ctime"`
	Mtime      int64       `json:"mtime"`
}

type Source struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	ChunkCount int    `json:"chunk_count"`
	Ctime      int64  `json:"ctime"`
}
