package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragcore/internal/model"
	appErr "github.com/xxxsen/ragcore/internal/pkg/errors"
)

type ratingAgg struct {
	count int64
	sum   int64
	dist  [6]int64 // index by rating 1..5
}

func (a *ratingAgg) add(rating int, n int64) {
	a.count += n
	a.sum += int64(rating) * n
	a.dist[rating] += n
}

func (a *ratingAgg) statistics() model.FeedbackStatistics {
	stats := model.FeedbackStatistics{
		Count:        a.count,
		Distribution: make(map[int]int64, 5),
	}
	var positive int64
	for rating := 1; rating <= 5; rating++ {
		stats.Distribution[rating] = a.dist[rating]
		if rating >= 4 {
			positive += a.dist[rating]
		}
	}
	if a.count > 0 {
		stats.AverageRating = float64(a.sum) / float64(a.count)
		stats.PositiveRatio = float64(positive) / float64(a.count)
	}
	return stats
}

// FeedbackService owns feedback: append-only writes plus streaming
// aggregates so statistics never rescan the feedback table.
type FeedbackService struct {
	feedback FeedbackStore
	queries  QueryStore

	mu        sync.RWMutex
	total     ratingAgg
	byVersion map[int64]*ratingAgg
}

func NewFeedbackService(feedback FeedbackStore, queries QueryStore) *FeedbackService {
	return &FeedbackService{
		feedback:  feedback,
		queries:   queries,
		byVersion: make(map[int64]*ratingAgg),
	}
}

// Load seeds the in-memory aggregates from the persisted feedback. Called
// once at startup.
func (s *FeedbackService) Load(ctx context.Context) error {
	buckets, err := s.feedback.AggregateByVersion(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = ratingAgg{}
	s.byVersion = make(map[int64]*ratingAgg)
	for _, bucket := range buckets {
		if bucket.Rating < 1 || bucket.Rating > 5 {
			continue
		}
		s.total.add(bucket.Rating, bucket.Count)
		s.versionAggLocked(bucket.PolicyVersion).add(bucket.Rating, bucket.Count)
	}
	logutil.GetLogger(ctx).Info("feedback aggregates loaded", zap.Int64("count", s.total.count))
	return nil
}

// Record appends one feedback entry. Duplicates are by design: multiple
// raters may rate the same query.
func (s *FeedbackService) Record(ctx context.Context, queryID string, rating int, comment string) (*model.Feedback, error) {
	if rating < 1 || rating > 5 {
		return nil, appErr.ErrInvalidRating
	}
	query, err := s.queries.GetQuery(ctx, strings.TrimSpace(queryID))
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, appErr.ErrUnknownQuery
		}
		return nil, err
	}
	fb := &model.Feedback{
		ID:      newID(),
		QueryID: query.ID,
		Rating:  rating,
		Comment: strings.TrimSpace(comment),
		Ctime:   time.Now().UnixMilli(),
	}
	if err := s.feedback.Insert(ctx, fb); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.total.add(rating, 1)
	s.versionAggLocked(query.PolicyVersion).add(rating, 1)
	s.mu.Unlock()
	return fb, nil
}

// Statistics reads the streaming aggregate; a non-nil policyVersion narrows
// it to feedback for queries that ran under that version.
func (s *FeedbackService) Statistics(policyVersion *int64) model.FeedbackStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if policyVersion == nil {
		return s.total.statistics()
	}
	agg, ok := s.byVersion[*policyVersion]
	if !ok {
		return (&ratingAgg{}).statistics()
	}
	return agg.statistics()
}

func (s *FeedbackService) versionAggLocked(version int64) *ratingAgg {
	agg, ok := s.byVersion[version]
	if !ok {
		agg = &ratingAgg{}
		s.byVersion[version] = agg
	}
	return agg
}
