package service

import (
	"sort"

	"github.com/xxxsen/ragcore/internal/model"
)

// ScoredChunk pairs a chunk with its raw similarity score and the biased
// score used for ranking. Raw scores are what gets persisted; bias only
// reorders.
type ScoredChunk struct {
	Chunk  model.Chunk
	Score  float64
	Ranked float64
}

// OrderForContext sorts chunks best-first for context assembly: biased score
// descending, then source ordinal ascending so multi-chunk retrievals from
// one source read in document order.
func OrderForContext(chunks []ScoredChunk) []ScoredChunk {
	ordered := make([]ScoredChunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Ranked != ordered[j].Ranked {
			return ordered[i].Ranked > ordered[j].Ranked
		}
		if ordered[i].Chunk.SourceID != ordered[j].Chunk.SourceID {
			return ordered[i].Chunk.SourceID < ordered[j].Chunk.SourceID
		}
		return ordered[i].Chunk.Ordinal < ordered[j].Chunk.Ordinal
	})
	return ordered
}

// PackContext greedily packs ordered chunks into the token budget. A chunk
// that would overflow the budget is skipped whole, never truncated; smaller
// chunks further down the ranking may still fit.
func PackContext(budget int, ordered []ScoredChunk) []ScoredChunk {
	if budget <= 0 {
		return nil
	}
	var packed []ScoredChunk
	remaining := budget
	for _, item := range ordered {
		if item.Chunk.TokenCount > remaining {
			continue
		}
		packed = append(packed, item)
		remaining -= item.Chunk.TokenCount
	}
	return packed
}
