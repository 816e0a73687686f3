package marketplace

import (
	"context"
	"time"

	"github.com/sudo-init-do/skillhub/internal/user"
)

// TaskQuery selects tasks for a listing. Empty fields do not filter.
type TaskQuery struct {
	CustomerID string
	// VisibleToTasker keeps unassigned tasks plus tasks assigned to this id.
	VisibleToTasker string
	CategoryID      string
	Status          TaskStatus
}

// Store implementations return errors wrapping apperr.ErrNotFound for missing
// rows and apperr.ErrConflict for unique-key or compare-and-set misses.
type TaskStore interface {
	CreateTask(ctx context.Context, t Task) error
	GetTask(ctx context.Context, id string) (Task, error)
	// ListTasks orders by created_at descending.
	ListTasks(ctx context.Context, q TaskQuery) ([]Task, error)
	// UpdateTask writes the mutable columns of t only if the stored status
	// still equals expect. customer_id and tasker_id are never written.
	UpdateTask(ctx context.Context, t Task, expect TaskStatus) error
	// AssignTask sets tasker_id and status=assigned only if the task is still posted.
	AssignTask(ctx context.Context, taskID, taskerID string, at time.Time) error
	// CountCompletion adds one to the tasker's total_tasks_completed.
	CountCompletion(ctx context.Context, taskerID string) error
}

type ApplicationStore interface {
	// CreateApplication inserts only while the task is still posted; a task
	// in any other state, or a repeated task/tasker pair, is a conflict.
	CreateApplication(ctx context.Context, a Application) error
	GetApplication(ctx context.Context, id string) (Application, error)
	ListApplications(ctx context.Context, taskID string) ([]Application, error)
	CountApplications(ctx context.Context, taskIDs []string) (map[string]int, error)
	// UpdateApplication writes a only if its stored status still equals expect.
	UpdateApplication(ctx context.Context, a Application, expect ApplicationStatus) error
}

type MessageStore interface {
	CreateMessage(ctx context.Context, m Message) error
	// ListMessages orders by created_at ascending.
	ListMessages(ctx context.Context, taskID string) ([]Message, error)
	// MarkRead stamps read_at on the messages in ids that are addressed to
	// receiverID and still unread, and returns how many rows changed.
	MarkRead(ctx context.Context, taskID, receiverID string, ids []string, at time.Time) (int64, error)
}

type ReviewStore interface {
	// CreateReview inserts r and recomputes the reviewee's average_rating and
	// total_reviews. A second review of the same task is ErrConflict.
	CreateReview(ctx context.Context, r Review) error
	// ListReviews orders by created_at descending.
	ListReviews(ctx context.Context, revieweeID string, limit, offset int) ([]Review, error)
	RatingSummary(ctx context.Context, revieweeID string) (RatingSummary, error)
}

type ProfileCards interface {
	LookupProfiles(ctx context.Context, ids []string) (map[string]user.ApplicantProfile, error)
}

// Store is everything the lifecycle service persists through.
type Store interface {
	TaskStore
	ApplicationStore
	MessageStore
	ReviewStore
	ProfileCards
	// WithTx runs fn against a transactional view; fn's error rolls everything back.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
