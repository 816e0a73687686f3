package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/skillhub/internal/marketplace"
)

const taskColumns = `id, customer_id, tasker_id, category_id, title, description, budget, location,
    task_size, urgency, estimated_hours, special_instructions, status, created_at, updated_at, completed_at`

func scanTask(row pgx.Row) (marketplace.Task, error) {
	var t marketplace.Task
	err := row.Scan(&t.ID, &t.CustomerID, &t.TaskerID, &t.CategoryID, &t.Title, &t.Description, &t.Budget,
		&t.Location, &t.TaskSize, &t.Urgency, &t.EstimatedHours, &t.SpecialInstructions, &t.Status,
		&t.CreatedAt, &t.UpdatedAt, &t.CompletedAt)
	return t, err
}

func (s *Store) CreateTask(ctx context.Context, t marketplace.Task) error {
	_, err := s.q.Exec(ctx, `
        INSERT INTO tasks (id, customer_id, tasker_id, category_id, title, description, budget, location,
            task_size, urgency, estimated_hours, special_instructions, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID, t.CustomerID, t.TaskerID, t.CategoryID, t.Title, t.Description, t.Budget, t.Location,
		t.TaskSize, t.Urgency, t.EstimatedHours, t.SpecialInstructions, t.Status, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return wrap("insert task", err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (marketplace.Task, error) {
	t, err := scanTask(s.q.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		return marketplace.Task{}, wrap("get task", err)
	}
	return t, nil
}

func (s *Store) ListTasks(ctx context.Context, q marketplace.TaskQuery) ([]marketplace.Task, error) {
	var (
		conds []string
		args  []any
	)
	where := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if q.CustomerID != "" {
		where("customer_id = $%d", q.CustomerID)
	}
	if q.VisibleToTasker != "" {
		where("(tasker_id IS NULL OR tasker_id = $%d)", q.VisibleToTasker)
	}
	if q.CategoryID != "" {
		where("category_id = $%d", q.CategoryID)
	}
	if q.Status != "" {
		where("status = $%d", q.Status)
	}

	sql := `SELECT ` + taskColumns + ` FROM tasks`
	if len(conds) > 0 {
		sql += ` WHERE ` + strings.Join(conds, " AND ")
	}
	sql += ` ORDER BY created_at DESC, id`

	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrap("list tasks", err)
	}
	defer rows.Close()

	out := []marketplace.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, wrap("scan task", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list tasks", err)
	}
	return out, nil
}

func (s *Store) UpdateTask(ctx context.Context, t marketplace.Task, expect marketplace.TaskStatus) error {
	tag, err := s.q.Exec(ctx, `
        UPDATE tasks SET
            category_id = $2, title = $3, description = $4, budget = $5, location = $6,
            task_size = $7, urgency = $8, estimated_hours = $9, special_instructions = $10,
            status = $11, updated_at = $12, completed_at = $13
        WHERE id = $1 AND status = $14`,
		t.ID, t.CategoryID, t.Title, t.Description, t.Budget, t.Location,
		t.TaskSize, t.Urgency, t.EstimatedHours, t.SpecialInstructions,
		t.Status, t.UpdatedAt, t.CompletedAt, expect)
	if err != nil {
		return wrap("update task", err)
	}
	return casMiss("update task", tag)
}

func (s *Store) AssignTask(ctx context.Context, taskID, taskerID string, at time.Time) error {
	tag, err := s.q.Exec(ctx, `
        UPDATE tasks SET tasker_id = $2, status = 'assigned', updated_at = $3
        WHERE id = $1 AND status = 'posted'`,
		taskID, taskerID, at)
	if err != nil {
		return wrap("assign task", err)
	}
	return casMiss("assign task", tag)
}

func (s *Store) CountCompletion(ctx context.Context, taskerID string) error {
	_, err := s.q.Exec(ctx, `
        UPDATE profiles SET total_tasks_completed = total_tasks_completed + 1
        WHERE id = $1`, taskerID)
	if err != nil {
		return wrap("count completion", err)
	}
	return nil
}
