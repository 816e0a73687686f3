package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/skillhub/internal/marketplace"
)

const applicationColumns = `id, task_id, tasker_id, message, proposed_rate, estimated_duration, status, created_at, updated_at`

func scanApplication(row pgx.Row) (marketplace.Application, error) {
	var a marketplace.Application
	err := row.Scan(&a.ID, &a.TaskID, &a.TaskerID, &a.Message, &a.ProposedRate, &a.EstimatedDuration,
		&a.Status, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// CreateApplication relies on UNIQUE (task_id, tasker_id) to refuse a second bid.
// CreateApplication share-locks the task row, so an accept committing
// concurrently either waits for the insert or makes it match nothing.
func (s *Store) CreateApplication(ctx context.Context, a marketplace.Application) error {
	tag, err := s.q.Exec(ctx, `
        INSERT INTO task_applications (id, task_id, tasker_id, message, proposed_rate, estimated_duration,
            status, created_at, updated_at)
        SELECT $1::uuid, $2::uuid, $3::uuid, $4::text, $5::numeric, $6::text, $7::text, $8::timestamptz, $9::timestamptz
        WHERE EXISTS (SELECT 1 FROM tasks WHERE id = $2::uuid AND status = 'posted' FOR SHARE)`,
		a.ID, a.TaskID, a.TaskerID, a.Message, a.ProposedRate, a.EstimatedDuration, a.Status, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return wrap("insert application", err)
	}
	return casMiss("insert application", tag)
}

func (s *Store) GetApplication(ctx context.Context, id string) (marketplace.Application, error) {
	a, err := scanApplication(s.q.QueryRow(ctx, `SELECT `+applicationColumns+` FROM task_applications WHERE id = $1`, id))
	if err != nil {
		return marketplace.Application{}, wrap("get application", err)
	}
	return a, nil
}

func (s *Store) ListApplications(ctx context.Context, taskID string) ([]marketplace.Application, error) {
	rows, err := s.q.Query(ctx, `
        SELECT `+applicationColumns+`
        FROM task_applications
        WHERE task_id = $1
        ORDER BY created_at DESC, id`, taskID)
	if err != nil {
		return nil, wrap("list applications", err)
	}
	defer rows.Close()

	out := []marketplace.Application{}
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, wrap("scan application", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list applications", err)
	}
	return out, nil
}

func (s *Store) CountApplications(ctx context.Context, taskIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(taskIDs))
	if len(taskIDs) == 0 {
		return out, nil
	}
	rows, err := s.q.Query(ctx, `
        SELECT task_id, COUNT(*)
        FROM task_applications
        WHERE task_id = ANY($1::uuid[])
        GROUP BY task_id`, taskIDs)
	if err != nil {
		return nil, wrap("count applications", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, wrap("scan application count", err)
		}
		out[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("count applications", err)
	}
	return out, nil
}

func (s *Store) UpdateApplication(ctx context.Context, a marketplace.Application, expect marketplace.ApplicationStatus) error {
	tag, err := s.q.Exec(ctx, `
        UPDATE task_applications SET
            message = $2, proposed_rate = $3, estimated_duration = $4, status = $5, updated_at = $6
        WHERE id = $1 AND status = $7`,
		a.ID, a.Message, a.ProposedRate, a.EstimatedDuration, a.Status, a.UpdatedAt, expect)
	if err != nil {
		return wrap("update application", err)
	}
	return casMiss("update application", tag)
}
