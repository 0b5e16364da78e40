package model

// Feedback is an append-only rating for a query. Multiple entries may
// reference the same query; none of them ever mutate the query or response.
type Feedback struct {
	ID      string `json:"id"`
	QueryID string `json:"query_id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
	Ctime   int64  `json:"ctime"`
}

// FeedbackStatistics is the read-side aggregate over feedback entries.
type FeedbackStatistics struct {
	Count         int64         `json:"count"`
	AverageRating float64       `json:"average_rating"`
	Distribution  map[int]int64 `json:"distribution"`
	PositiveRatio float64       `json:"positive_ratio"`
}
