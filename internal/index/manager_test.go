package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/ragcore/internal/pkg/errors"
)

func vec(values ...float32) []float32 {
	return values
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(3, 256, nil)
}

func TestInsertRejectsDimensionMismatch(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Insert(context.Background(), "c1", vec(1, 0), 1)
	require.ErrorIs(t, err, appErr.ErrDimensionMismatch)
}

func TestSearchRejectsDimensionMismatch(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Insert(context.Background(), "c1", vec(1, 0, 0), 1)
	require.NoError(t, err)
	_, err = m.Search(vec(1, 0), 5, 0)
	require.ErrorIs(t, err, appErr.ErrDimensionMismatch)
}

func TestSearchEmptyIndexNotReady(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Search(vec(1, 0, 0), 5, 0)
	require.ErrorIs(t, err, appErr.ErrIndexNotReady)
}

func TestSearchRanksBySimilarity(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	_, err := m.Insert(ctx, "far", vec(0, 1, 0), 1)
	require.NoError(t, err)
	_, err = m.Insert(ctx, "near", vec(1, 0, 0), 2)
	require.NoError(t, err)
	_, err = m.Insert(ctx, "mid", vec(1, 1, 0), 3)
	require.NoError(t, err)

	matches, err := m.Search(vec(1, 0, 0), 10, 0)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	require.Equal(t, "near", matches[0].ChunkID)
	require.Equal(t, "mid", matches[1].ChunkID)
	require.Equal(t, "far", matches[2].ChunkID)
}

func TestSearchHonorsKAndMinScore(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	_, err := m.Insert(ctx, "a", vec(1, 0, 0), 1)
	require.NoError(t, err)
	_, err = m.Insert(ctx, "b", vec(0.9, 0.1, 0), 2)
	require.NoError(t, err)
	_, err = m.Insert(ctx, "c", vec(0, 1, 0), 3)
	require.NoError(t, err)

	matches, err := m.Search(vec(1, 0, 0), 10, 0.5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, match := range matches {
		require.GreaterOrEqual(t, match.Score, 0.5)
	}

	matches, err = m.Search(vec(1, 0, 0), 1, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "a", matches[0].ChunkID)
}

func TestSearchTieBreaksByInsertionOrder(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	firstID, err := m.Insert(ctx, "first", vec(2, 0, 0), 1)
	require.NoError(t, err)
	secondID, err := m.Insert(ctx, "second", vec(4, 0, 0), 2)
	require.NoError(t, err)
	require.Greater(t, secondID, firstID)

	// Identical direction, identical cosine score.
	matches, err := m.Search(vec(1, 0, 0), 10, 0)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "first", matches[0].ChunkID)
	require.Equal(t, "second", matches[1].ChunkID)
}

func TestRemoveHidesVectorBeforeRebuild(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	keepID, err := m.Insert(ctx, "keep", vec(1, 0, 0), 1)
	require.NoError(t, err)
	dropID, err := m.Insert(ctx, "drop", vec(1, 0, 0), 2)
	require.NoError(t, err)
	_ = keepID

	require.NoError(t, m.Remove(ctx, dropID))
	require.Equal(t, 1, m.LiveCount())

	matches, err := m.Search(vec(1, 0, 0), 10, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "keep", matches[0].ChunkID)
}

func TestSearchAllTombstonedNotReady(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	id, err := m.Insert(ctx, "only", vec(1, 0, 0), 1)
	require.NoError(t, err)
	require.NoError(t, m.Remove(ctx, id))

	_, err = m.Search(vec(1, 0, 0), 10, 0)
	require.ErrorIs(t, err, appErr.ErrIndexNotReady)
}

func TestRebuildPreservesSearchResults(t *testing.T) {
	m := NewManager(3, 2, nil) // low threshold forces a mid-insert merge
	ctx := context.Background()
	_, err := m.Insert(ctx, "a", vec(1, 0, 0), 1)
	require.NoError(t, err)
	_, err = m.Insert(ctx, "b", vec(0, 1, 0), 2)
	require.NoError(t, err)
	dropID, err := m.Insert(ctx, "c", vec(1, 1, 0), 3)
	require.NoError(t, err)
	require.NoError(t, m.Remove(ctx, dropID))

	before, err := m.Search(vec(1, 0, 0), 10, 0)
	require.NoError(t, err)

	require.NoError(t, m.Rebuild(ctx))

	after, err := m.Search(vec(1, 0, 0), 10, 0)
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, 2, m.LiveCount())
}

func TestCosine(t *testing.T) {
	require.InDelta(t, 1.0, Cosine(vec(1, 0, 0), vec(2, 0, 0)), 1e-9)
	require.InDelta(t, 0.0, Cosine(vec(1, 0, 0), vec(0, 1, 0)), 1e-9)
	require.InDelta(t, -1.0, Cosine(vec(1, 0, 0), vec(-1, 0, 0)), 1e-9)
	require.Equal(t, 0.0, Cosine(vec(0, 0, 0), vec(1, 0, 0)))
}
