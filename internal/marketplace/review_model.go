package marketplace

import (
	"math"
	"time"

	"github.com/sudo-init-do/skillhub/internal/user"
)

// Review is the customer's rating of the tasker on a completed task. A task
// is reviewed at most once.
type Review struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	ReviewerID string    `json:"reviewer_id"`
	RevieweeID string    `json:"reviewee_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
}

type ReviewView struct {
	Review
	ReviewerProfile *user.PublicProfile `json:"reviewer_profile"`
}

type RatingCounts struct {
	FiveStar  int `json:"five_star"`
	FourStar  int `json:"four_star"`
	ThreeStar int `json:"three_star"`
	TwoStar   int `json:"two_star"`
	OneStar   int `json:"one_star"`
}

// RatingSummary aggregates every review a user has received.
type RatingSummary struct {
	UserID        string       `json:"user_id"`
	TotalReviews  int          `json:"total_reviews"`
	AverageRating float64      `json:"average_rating"`
	RatingCounts  RatingCounts `json:"rating_counts"`
}

// SummarizeRatings builds a summary from per-star counts. The average is
// rounded to two decimals, the precision profiles store it at.
func SummarizeRatings(userID string, byStars map[int]int) RatingSummary {
	sum := RatingSummary{UserID: userID}
	total := 0
	for stars, n := range byStars {
		sum.TotalReviews += n
		total += stars * n
	}
	if sum.TotalReviews > 0 {
		sum.AverageRating = math.Round(float64(total)/float64(sum.TotalReviews)*100) / 100
	}
	sum.RatingCounts = RatingCounts{
		FiveStar:  byStars[5],
		FourStar:  byStars[4],
		ThreeStar: byStars[3],
		TwoStar:   byStars[2],
		OneStar:   byStars[1],
	}
	return sum
}

type ReviewPage struct {
	Summary RatingSummary `json:"summary"`
	Reviews []ReviewView  `json:"reviews"`
	Page    int           `json:"page"`
	Limit   int           `json:"limit"`
}

type CreateReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=1000"`
}
