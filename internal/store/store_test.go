package store

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/skillhub/internal/apperr"
	"github.com/sudo-init-do/skillhub/internal/auth"
	"github.com/sudo-init-do/skillhub/internal/db"
	"github.com/sudo-init-do/skillhub/internal/marketplace"
	"github.com/sudo-init-do/skillhub/internal/user"
)

// testPool connects to TEST_DATABASE_URL and brings the schema up. Tests are
// skipped when no database is configured.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, url, 4)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	t.Cleanup(pool.Close)

	require.NoError(t, db.EnsureSchema(ctx, pool, slog.New(slog.NewTextHandler(io.Discard, nil))))
	return pool
}

func insertProfile(t *testing.T, pool *pgxpool.Pool, role auth.Role) string {
	t.Helper()
	id := uuid.NewString()
	_, err := pool.Exec(context.Background(), `
        INSERT INTO profiles (id, email, full_name, username, role)
        VALUES ($1, $2, $3, $4, $5)`,
		id, id[:8]+"@example.com", "User "+id[:8], "u"+id[:8], role)
	require.NoError(t, err)
	return id
}

func insertTask(t *testing.T, s *Store, customerID string) marketplace.Task {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	task := marketplace.Task{
		ID:          uuid.NewString(),
		CustomerID:  customerID,
		CategoryID:  "1",
		Title:       "Mount a TV",
		Description: "65 inch",
		Location:    marketplace.Location{City: "Austin"},
		TaskSize:    "medium",
		Urgency:     "flexible",
		Status:      marketplace.TaskPosted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.CreateTask(context.Background(), task))
	return task
}

func TestTaskRoundTripAndAssign(t *testing.T) {
	pool := testPool(t)
	s := New(pool)
	ctx := context.Background()
	customer := insertProfile(t, pool, auth.RoleCustomer)
	tasker := insertProfile(t, pool, auth.RoleTasker)

	task := insertTask(t, s, customer)
	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Title, got.Title)
	assert.Equal(t, "Austin", got.Location.City)
	assert.Nil(t, got.TaskerID)

	_, err = s.GetTask(ctx, uuid.NewString())
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = s.WithTx(ctx, func(tx marketplace.Store) error {
		return tx.AssignTask(ctx, task.ID, tasker, time.Now())
	})
	require.NoError(t, err)
	assert.ErrorIs(t, s.AssignTask(ctx, task.ID, tasker, time.Now()), apperr.ErrConflict)

	got, err = s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, marketplace.TaskAssigned, got.Status)
	require.NotNil(t, got.TaskerID)
	assert.Equal(t, tasker, *got.TaskerID)

	listed, err := s.ListTasks(ctx, marketplace.TaskQuery{CustomerID: customer})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, task.ID, listed[0].ID)
}

func TestTaskerStatusConstraint(t *testing.T) {
	pool := testPool(t)
	s := New(pool)
	ctx := context.Background()
	task := insertTask(t, s, insertProfile(t, pool, auth.RoleCustomer))

	// A posted task may not be moved off posted without a tasker.
	task.Status = marketplace.TaskInProgress
	err := s.UpdateTask(ctx, task, marketplace.TaskPosted)
	assert.ErrorIs(t, err, apperr.ErrStore)
}

func TestWithTxRollsBack(t *testing.T) {
	pool := testPool(t)
	s := New(pool)
	ctx := context.Background()
	tasker := insertProfile(t, pool, auth.RoleTasker)
	task := insertTask(t, s, insertProfile(t, pool, auth.RoleCustomer))

	err := s.WithTx(ctx, func(tx marketplace.Store) error {
		require.NoError(t, tx.AssignTask(ctx, task.ID, tasker, time.Now()))
		return apperr.InvalidState("abort")
	})
	require.ErrorIs(t, err, apperr.ErrInvalidState)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, marketplace.TaskPosted, got.Status)
}

func TestApplicationsUniqueAndCompareAndSet(t *testing.T) {
	pool := testPool(t)
	s := New(pool)
	ctx := context.Background()
	tasker := insertProfile(t, pool, auth.RoleTasker)
	task := insertTask(t, s, insertProfile(t, pool, auth.RoleCustomer))

	now := time.Now().UTC()
	a := marketplace.Application{ID: uuid.NewString(), TaskID: task.ID, TaskerID: tasker, Status: marketplace.ApplicationPending, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateApplication(ctx, a))

	dup := a
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, s.CreateApplication(ctx, dup), apperr.ErrConflict)

	counts, err := s.CountApplications(ctx, []string{task.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, counts[task.ID])

	a.Status = marketplace.ApplicationRejected
	require.NoError(t, s.UpdateApplication(ctx, a, marketplace.ApplicationPending))
	assert.ErrorIs(t, s.UpdateApplication(ctx, a, marketplace.ApplicationPending), apperr.ErrConflict)

	// Once assigned, the task takes no new bids.
	require.NoError(t, s.AssignTask(ctx, task.ID, tasker, now))
	late := marketplace.Application{ID: uuid.NewString(), TaskID: task.ID, TaskerID: insertProfile(t, pool, auth.RoleTasker), Status: marketplace.ApplicationPending, CreatedAt: now, UpdatedAt: now}
	assert.ErrorIs(t, s.CreateApplication(ctx, late), apperr.ErrConflict)
	counts, err = s.CountApplications(ctx, []string{task.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, counts[task.ID])
}

func TestMarkRead(t *testing.T) {
	pool := testPool(t)
	s := New(pool)
	ctx := context.Background()
	customer := insertProfile(t, pool, auth.RoleCustomer)
	tasker := insertProfile(t, pool, auth.RoleTasker)
	task := insertTask(t, s, customer)
	require.NoError(t, s.AssignTask(ctx, task.ID, tasker, time.Now()))

	now := time.Now().UTC()
	hi, hello, late := uuid.NewString(), uuid.NewString(), uuid.NewString()
	require.NoError(t, s.CreateMessage(ctx, marketplace.Message{ID: hi, TaskID: task.ID, SenderID: customer, ReceiverID: tasker, Content: "hi", MessageType: marketplace.MessageText, CreatedAt: now}))
	require.NoError(t, s.CreateMessage(ctx, marketplace.Message{ID: hello, TaskID: task.ID, SenderID: tasker, ReceiverID: customer, Content: "hello", MessageType: marketplace.MessageText, CreatedAt: now.Add(time.Second)}))
	require.NoError(t, s.CreateMessage(ctx, marketplace.Message{ID: late, TaskID: task.ID, SenderID: customer, ReceiverID: tasker, Content: "late", MessageType: marketplace.MessageText, CreatedAt: now.Add(2 * time.Second)}))

	n, err := s.MarkRead(ctx, task.ID, tasker, []string{hi, hello}, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = s.MarkRead(ctx, task.ID, tasker, []string{hi}, now)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
	n, err = s.MarkRead(ctx, task.ID, tasker, nil, now)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	msgs, err := s.ListMessages(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.NotNil(t, msgs[0].ReadAt)
	assert.Nil(t, msgs[1].ReadAt)
	assert.Nil(t, msgs[2].ReadAt, "unlisted messages stay unread")
}

func TestProfiles(t *testing.T) {
	pool := testPool(t)
	s := New(pool)
	ctx := context.Background()
	id := insertProfile(t, pool, auth.RoleTasker)
	other := insertProfile(t, pool, auth.RoleCustomer)

	role, err := s.ProfileRole(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleTasker, role)

	bio := "Ten years of drywall"
	skills := []string{"mounting", "painting"}
	p, err := s.UpdateProfile(ctx, id, user.UpdateProfileRequest{Bio: &bio, Skills: &skills}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, p.Bio)
	assert.Equal(t, bio, *p.Bio)
	assert.Equal(t, skills, p.Skills)
	assert.Equal(t, "User "+id[:8], p.FullName, "absent fields are kept")

	taken := "u" + other[:8]
	_, err = s.UpdateProfile(ctx, id, user.UpdateProfileRequest{Username: &taken}, time.Now())
	assert.ErrorIs(t, err, apperr.ErrConflict)

	cards, err := s.LookupProfiles(ctx, []string{id, uuid.NewString()})
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, skills, cards[id].Skills)

	cats, err := s.ListCategories(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(cats), 10)
}

func TestReviewsRefreshProfile(t *testing.T) {
	pool := testPool(t)
	s := New(pool)
	ctx := context.Background()
	customer := insertProfile(t, pool, auth.RoleCustomer)
	tasker := insertProfile(t, pool, auth.RoleTasker)

	now := time.Now().UTC().Truncate(time.Microsecond)
	var first marketplace.Review
	for i, rating := range []int{5, 4} {
		r := marketplace.Review{
			ID:         uuid.NewString(),
			TaskID:     insertTask(t, s, customer).ID,
			ReviewerID: customer,
			RevieweeID: tasker,
			Rating:     rating,
			Comment:    "ok",
			CreatedAt:  now.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.WithTx(ctx, func(tx marketplace.Store) error { return tx.CreateReview(ctx, r) }))
		if i == 0 {
			first = r
		}
	}

	dup := first
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, s.CreateReview(ctx, dup), apperr.ErrConflict)

	p, err := s.GetProfile(ctx, tasker)
	require.NoError(t, err)
	assert.Equal(t, 2, p.TotalReviews)
	assert.Equal(t, 4.5, p.AverageRating)

	reviews, err := s.ListReviews(ctx, tasker, 10, 0)
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, 4, reviews[0].Rating, "newest first")
	assert.Equal(t, first.ID, reviews[1].ID)
	assert.True(t, first.CreatedAt.Equal(reviews[1].CreatedAt))

	sum, err := s.RatingSummary(ctx, tasker)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalReviews)
	assert.Equal(t, 1, sum.RatingCounts.FiveStar)
}
