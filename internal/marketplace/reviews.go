package marketplace

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/sudo-init-do/skillhub/internal/apperr"
	"github.com/sudo-init-do/skillhub/internal/auth"
	"github.com/sudo-init-do/skillhub/internal/events"
)

const (
	defaultReviewLimit = 10
	maxReviewLimit     = 50
)

// CreateReview records the customer's rating of the tasker who completed
// the task and refreshes the tasker's profile aggregates in the same
// transaction.
func (s *Service) CreateReview(ctx context.Context, id auth.Identity, taskID string, req CreateReviewRequest) (Review, error) {
	t, err := s.getTask(ctx, taskID)
	if err != nil {
		return Review{}, err
	}
	if t.CustomerID != id.UserID {
		return Review{}, apperr.Forbidden("only the task's customer can review it")
	}
	if t.Status != TaskCompleted || t.TaskerID == nil {
		return Review{}, apperr.InvalidState("only completed tasks can be reviewed")
	}

	r := Review{
		ID:         uuid.NewString(),
		TaskID:     t.ID,
		ReviewerID: id.UserID,
		RevieweeID: *t.TaskerID,
		Rating:     req.Rating,
		Comment:    req.Comment,
		CreatedAt:  s.clock(),
	}
	err = s.store.WithTx(ctx, func(tx Store) error {
		return tx.CreateReview(ctx, r)
	})
	if errors.Is(err, apperr.ErrConflict) {
		return Review{}, apperr.InvalidState("task has already been reviewed")
	}
	if err != nil {
		return Review{}, err
	}

	s.publish(ctx, events.Event{Type: events.ReviewCreated, TaskID: t.ID, ActorID: id.UserID, SubjectID: r.ID, RecipientID: r.RevieweeID, OccurredAt: r.CreatedAt})
	return r, nil
}

// ListReviews pages through the reviews a user received, newest first.
// Out-of-range paging values fall back to the defaults.
func (s *Service) ListReviews(ctx context.Context, userID string, page, limit int) (ReviewPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxReviewLimit {
		limit = defaultReviewLimit
	}

	owner, err := s.store.LookupProfiles(ctx, []string{userID})
	if err != nil {
		return ReviewPage{}, err
	}
	if _, ok := owner[userID]; !ok {
		return ReviewPage{}, apperr.NotFound("profile not found")
	}

	summary, err := s.store.RatingSummary(ctx, userID)
	if err != nil {
		return ReviewPage{}, err
	}
	reviews, err := s.store.ListReviews(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return ReviewPage{}, err
	}

	ids := make([]string, len(reviews))
	for i, r := range reviews {
		ids[i] = r.ReviewerID
	}
	cards, err := s.cards(ctx, ids...)
	if err != nil {
		return ReviewPage{}, err
	}
	views := make([]ReviewView, len(reviews))
	for i, r := range reviews {
		views[i] = ReviewView{Review: r, ReviewerProfile: publicCard(cards, r.ReviewerID)}
	}
	return ReviewPage{Summary: summary, Reviews: views, Page: page, Limit: limit}, nil
}
