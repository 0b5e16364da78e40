package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragcore/internal/model"
	appErr "github.com/xxxsen/ragcore/internal/pkg/errors"
)

func newFeedbackFixture(t *testing.T) (*FeedbackService, *memQueryStore) {
	t.Helper()
	queries := newMemQueryStore()
	store := newMemFeedbackStore(queries)
	svc := NewFeedbackService(store, queries)
	require.NoError(t, svc.Load(context.Background()))
	return svc, queries
}

func seedQuery(t *testing.T, queries *memQueryStore, id string, policyVersion int64) {
	t.Helper()
	require.NoError(t, queries.SaveQuery(context.Background(), &model.Query{
		ID:            id,
		Content:       "q",
		PolicyVersion: policyVersion,
	}))
}

func TestRecordRejectsOutOfRangeRating(t *testing.T) {
	svc, queries := newFeedbackFixture(t)
	seedQuery(t, queries, "q1", 1)
	for _, rating := range []int{0, -1, 6, 100} {
		_, err := svc.Record(context.Background(), "q1", rating, "")
		require.ErrorIs(t, err, appErr.ErrInvalidRating)
	}
}

func TestRecordRejectsUnknownQuery(t *testing.T) {
	svc, _ := newFeedbackFixture(t)
	_, err := svc.Record(context.Background(), "nope", 3, "")
	require.ErrorIs(t, err, appErr.ErrUnknownQuery)
}

func TestRecordAllowsMultipleRatingsPerQuery(t *testing.T) {
	svc, queries := newFeedbackFixture(t)
	seedQuery(t, queries, "q1", 1)

	_, err := svc.Record(context.Background(), "q1", 5, "great")
	require.NoError(t, err)
	_, err = svc.Record(context.Background(), "q1", 1, "bad")
	require.NoError(t, err)

	stats := svc.Statistics(nil)
	require.EqualValues(t, 2, stats.Count)
	require.InDelta(t, 3.0, stats.AverageRating, 1e-9)
	require.InDelta(t, 0.5, stats.PositiveRatio, 1e-9)
	require.EqualValues(t, 1, stats.Distribution[1])
	require.EqualValues(t, 1, stats.Distribution[5])
}

func TestStatisticsFilteredByPolicyVersion(t *testing.T) {
	svc, queries := newFeedbackFixture(t)
	seedQuery(t, queries, "q1", 1)
	seedQuery(t, queries, "q2", 2)

	_, err := svc.Record(context.Background(), "q1", 2, "")
	require.NoError(t, err)
	_, err = svc.Record(context.Background(), "q2", 4, "")
	require.NoError(t, err)

	v1 := int64(1)
	stats := svc.Statistics(&v1)
	require.EqualValues(t, 1, stats.Count)
	require.InDelta(t, 2.0, stats.AverageRating, 1e-9)

	missing := int64(99)
	require.EqualValues(t, 0, svc.Statistics(&missing).Count)
}

func TestLoadSeedsAggregatesFromStore(t *testing.T) {
	queries := newMemQueryStore()
	store := newMemFeedbackStore(queries)
	seedQuery(t, queries, "q1", 1)
	require.NoError(t, store.Insert(context.Background(), &model.Feedback{ID: "f1", QueryID: "q1", Rating: 4, Ctime: 10}))
	require.NoError(t, store.Insert(context.Background(), &model.Feedback{ID: "f2", QueryID: "q1", Rating: 2, Ctime: 20}))

	svc := NewFeedbackService(store, queries)
	require.NoError(t, svc.Load(context.Background()))

	stats := svc.Statistics(nil)
	require.EqualValues(t, 2, stats.Count)
	require.InDelta(t, 3.0, stats.AverageRating, 1e-9)
}
