package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragcore/internal/model"
)

func scoredChunk(id, sourceID string, ordinal, tokens int, ranked float64) ScoredChunk {
	return ScoredChunk{
		Chunk: model.Chunk{
			ID:         id,
			SourceID:   sourceID,
			Ordinal:    ordinal,
			TokenCount: tokens,
			Status:     model.ChunkStatusIndexed,
		},
		Score:  ranked,
		Ranked: ranked,
	}
}

func TestOrderForContextSortsByBiasedScore(t *testing.T) {
	chunks := []ScoredChunk{
		scoredChunk("low", "s1", 0, 10, 0.2),
		scoredChunk("high", "s1", 1, 10, 0.9),
		scoredChunk("mid", "s2", 0, 10, 0.5),
	}
	ordered := OrderForContext(chunks)
	require.Equal(t, "high", ordered[0].Chunk.ID)
	require.Equal(t, "mid", ordered[1].Chunk.ID)
	require.Equal(t, "low", ordered[2].Chunk.ID)
}

func TestOrderForContextTieBreaksByDocumentOrder(t *testing.T) {
	chunks := []ScoredChunk{
		scoredChunk("b2", "b", 2, 10, 0.8),
		scoredChunk("a5", "a", 5, 10, 0.8),
		scoredChunk("a1", "a", 1, 10, 0.8),
	}
	ordered := OrderForContext(chunks)
	require.Equal(t, "a1", ordered[0].Chunk.ID)
	require.Equal(t, "a5", ordered[1].Chunk.ID)
	require.Equal(t, "b2", ordered[2].Chunk.ID)
}

func TestPackContextNeverExceedsBudget(t *testing.T) {
	chunks := []ScoredChunk{
		scoredChunk("a", "s", 0, 300, 0.9),
		scoredChunk("b", "s", 1, 300, 0.8),
		scoredChunk("c", "s", 2, 300, 0.7),
	}
	packed := PackContext(700, OrderForContext(chunks))
	total := 0
	for _, item := range packed {
		total += item.Chunk.TokenCount
	}
	require.LessOrEqual(t, total, 700)
	require.Len(t, packed, 2)
}

func TestPackContextSkipsOversizedAndKeepsSmaller(t *testing.T) {
	chunks := []ScoredChunk{
		scoredChunk("big", "s", 0, 900, 0.9),
		scoredChunk("small", "s", 1, 100, 0.5),
	}
	packed := PackContext(200, OrderForContext(chunks))
	require.Len(t, packed, 1)
	require.Equal(t, "small", packed[0].Chunk.ID)
}

func TestPackContextZeroBudget(t *testing.T) {
	chunks := []ScoredChunk{scoredChunk("a", "s", 0, 10, 0.9)}
	require.Empty(t, PackContext(0, chunks))
}

func TestBuildPromptUsesMarkerWithoutContext(t *testing.T) {
	prompt := BuildPrompt("default", "what is up", nil)
	require.Contains(t, prompt, NoContextMarker)
	require.Contains(t, prompt, "what is up")
}

func TestBuildPromptNumbersContexts(t *testing.T) {
	prompt := BuildPrompt("grounded", "q", []string{"first fact", "second fact"})
	require.Contains(t, prompt, "[1] first fact")
	require.Contains(t, prompt, "[2] second fact")
	require.NotContains(t, prompt, NoContextMarker)
}
