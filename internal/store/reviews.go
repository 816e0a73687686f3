package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/skillhub/internal/marketplace"
)

// CreateReview relies on UNIQUE (task_id) to refuse a second review. Callers
// run it inside WithTx so the insert and the aggregate refresh land together.
func (s *Store) CreateReview(ctx context.Context, r marketplace.Review) error {
	_, err := s.q.Exec(ctx, `
        INSERT INTO task_reviews (id, task_id, reviewer_id, reviewee_id, rating, comment, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.TaskID, r.ReviewerID, r.RevieweeID, r.Rating, r.Comment, r.CreatedAt)
	if err != nil {
		return wrap("insert review", err)
	}
	_, err = s.q.Exec(ctx, `
        UPDATE profiles p SET
            total_reviews  = agg.n,
            average_rating = agg.avg
        FROM (
            SELECT COUNT(*) AS n, COALESCE(ROUND(AVG(rating)::numeric, 2), 0) AS avg
            FROM task_reviews
            WHERE reviewee_id = $1
        ) agg
        WHERE p.id = $1`, r.RevieweeID)
	if err != nil {
		return wrap("refresh rating", err)
	}
	return nil
}

func (s *Store) ListReviews(ctx context.Context, revieweeID string, limit, offset int) ([]marketplace.Review, error) {
	rows, err := s.q.Query(ctx, `
        SELECT id, task_id, reviewer_id, reviewee_id, rating, comment, created_at
        FROM task_reviews
        WHERE reviewee_id = $1
        ORDER BY created_at DESC, id
        LIMIT $2 OFFSET $3`, revieweeID, limit, offset)
	if err != nil {
		return nil, wrap("list reviews", err)
	}
	reviews, err := pgx.CollectRows(rows, pgx.RowToStructByPos[marketplace.Review])
	if err != nil {
		return nil, wrap("scan reviews", err)
	}
	return reviews, nil
}

func (s *Store) RatingSummary(ctx context.Context, revieweeID string) (marketplace.RatingSummary, error) {
	rows, err := s.q.Query(ctx, `
        SELECT rating, COUNT(*)
        FROM task_reviews
        WHERE reviewee_id = $1
        GROUP BY rating`, revieweeID)
	if err != nil {
		return marketplace.RatingSummary{}, wrap("rating summary", err)
	}
	defer rows.Close()

	byStars := map[int]int{}
	for rows.Next() {
		var stars, n int
		if err := rows.Scan(&stars, &n); err != nil {
			return marketplace.RatingSummary{}, wrap("scan rating summary", err)
		}
		byStars[stars] = n
	}
	if err := rows.Err(); err != nil {
		return marketplace.RatingSummary{}, wrap("rating summary", err)
	}
	return marketplace.SummarizeRatings(revieweeID, byStars), nil
}
