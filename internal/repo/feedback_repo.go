package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/ragcore/internal/model"
	"github.com/xxxsen/ragcore/internal/pkg/dbutil"
)

type FeedbackRepo struct {
	db *sql.DB
}

func NewFeedbackRepo(db *sql.DB) *FeedbackRepo {
	return &FeedbackRepo{db: db}
}

func (r *FeedbackRepo) Insert(ctx context.Context, fb *model.Feedback) error {
	data := map[string]interface{}{
		"id":       fb.ID,
		"query_id": fb.QueryID,
		"rating":   fb.Rating,
		"comment":  fb.Comment,
		"ctime":    fb.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("feedback", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// RatedFeedback joins a feedback entry with the policy version that was
// active when its query ran.
type RatedFeedback struct {
	Feedback      model.Feedback
	PolicyVersion int64
}

// ListAfter returns feedback entries newer than the watermark (ctime, unix
// millis), oldest first, each tagged with the policy version of its query.
func (r *FeedbackRepo) ListAfter(ctx context.Context, watermark int64, limit int) ([]RatedFeedback, error) {
	const query = `
		SELECT f.id, f.query_id, f.rating, f.comment, f.ctime, q.policy_version
		FROM feedback f
		JOIN queries q ON q.id = f.query_id
		WHERE f.ctime > $1
		ORDER BY f.ctime ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, watermark, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RatedFeedback
	for rows.Next() {
		var item RatedFeedback
		if err := rows.Scan(&item.Feedback.ID, &item.Feedback.QueryID, &item.Feedback.Rating,
			&item.Feedback.Comment, &item.Feedback.Ctime, &item.PolicyVersion); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// RatingBucket is one (policy version, rating) cell of the aggregate.
type RatingBucket struct {
	PolicyVersion int64
	Rating        int
	Count         int64
}

// AggregateByVersion seeds the in-memory streaming statistics at startup
// without loading individual feedback rows.
func (r *FeedbackRepo) AggregateByVersion(ctx context.Context) ([]RatingBucket, error) {
	const query = `
		SELECT q.policy_version, f.rating, COUNT(*)
		FROM feedback f
		JOIN queries q ON q.id = f.query_id
		GROUP BY q.policy_version, f.rating
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var buckets []RatingBucket
	for rows.Next() {
		var bucket RatingBucket
		if err := rows.Scan(&bucket.PolicyVersion, &bucket.Rating, &bucket.Count); err != nil {
			return nil, err
		}
		buckets = append(buckets, bucket)
	}
	return buckets, rows.Err()
}
