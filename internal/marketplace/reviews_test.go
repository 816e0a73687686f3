package marketplace_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/skillhub/internal/apperr"
	"github.com/sudo-init-do/skillhub/internal/events"
	"github.com/sudo-init-do/skillhub/internal/marketplace"
)

func (f *fixture) completed(t *testing.T) marketplace.Task {
	t.Helper()
	task, _ := f.assigned(t)
	for _, step := range []marketplace.TaskStatus{marketplace.TaskInProgress, marketplace.TaskCompleted} {
		_, err := f.svc.UpdateTask(f.ctx, f.tasker, task.ID, statusPatch(step))
		require.NoError(t, err)
	}
	return task
}

func TestCreateReview(t *testing.T) {
	f := newFixture(t)
	task := f.completed(t)

	r, err := f.svc.CreateReview(f.ctx, f.customer, task.ID, marketplace.CreateReviewRequest{Rating: 4, Comment: "Tidy work"})
	require.NoError(t, err)
	assert.Equal(t, f.tasker.UserID, r.RevieweeID)
	assert.Equal(t, f.customer.UserID, r.ReviewerID)

	p, err := f.store.GetProfile(f.ctx, f.tasker.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.TotalReviews)
	assert.Equal(t, 4.0, p.AverageRating)

	_, err = f.svc.CreateReview(f.ctx, f.customer, task.ID, marketplace.CreateReviewRequest{Rating: 5})
	assert.ErrorIs(t, err, apperr.ErrInvalidState, "one review per task")

	ev := f.events.last(events.ReviewCreated)
	require.NotNil(t, ev)
	assert.Equal(t, f.tasker.UserID, ev.RecipientID)
}

func TestCreateReviewRules(t *testing.T) {
	f := newFixture(t)
	open, _ := f.assigned(t)
	done := f.completed(t)

	_, err := f.svc.CreateReview(f.ctx, f.customer, open.ID, marketplace.CreateReviewRequest{Rating: 5})
	assert.ErrorIs(t, err, apperr.ErrInvalidState, "task not completed")

	_, err = f.svc.CreateReview(f.ctx, f.tasker, done.ID, marketplace.CreateReviewRequest{Rating: 5})
	assert.ErrorIs(t, err, apperr.ErrForbidden, "taskers do not review themselves")

	_, err = f.svc.CreateReview(f.ctx, f.customer, uuid.NewString(), marketplace.CreateReviewRequest{Rating: 5})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListReviews(t *testing.T) {
	f := newFixture(t)
	for _, rating := range []int{5, 3, 4} {
		task := f.completed(t)
		_, err := f.svc.CreateReview(f.ctx, f.customer, task.ID, marketplace.CreateReviewRequest{Rating: rating})
		require.NoError(t, err)
	}

	page, err := f.svc.ListReviews(f.ctx, f.tasker.UserID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Summary.TotalReviews)
	assert.Equal(t, 4.0, page.Summary.AverageRating)
	assert.Equal(t, 1, page.Summary.RatingCounts.ThreeStar)
	require.Len(t, page.Reviews, 2)
	assert.Equal(t, 4, page.Reviews[0].Rating, "newest first")
	require.NotNil(t, page.Reviews[0].ReviewerProfile)
	assert.Equal(t, f.customer.UserID, page.Reviews[0].ReviewerProfile.ID)

	page, err = f.svc.ListReviews(f.ctx, f.tasker.UserID, 0, 500)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 10, page.Limit, "out-of-range limit falls back")
	assert.Len(t, page.Reviews, 3)

	empty, err := f.svc.ListReviews(f.ctx, f.rival.UserID, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, empty.Reviews)
	assert.Zero(t, empty.Summary.AverageRating)

	_, err = f.svc.ListReviews(f.ctx, uuid.NewString(), 1, 10)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSummarizeRatings(t *testing.T) {
	sum := marketplace.SummarizeRatings("u", map[int]int{5: 2, 1: 1})
	assert.Equal(t, 3, sum.TotalReviews)
	assert.Equal(t, 3.67, sum.AverageRating)
	assert.Equal(t, 2, sum.RatingCounts.FiveStar)
	assert.Equal(t, 1, sum.RatingCounts.OneStar)

	assert.Zero(t, marketplace.SummarizeRatings("u", nil).AverageRating)
}
