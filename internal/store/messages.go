package store

import (
	"context"
	"time"

	"github.com/sudo-init-do/skillhub/internal/marketplace"
)

func (s *Store) CreateMessage(ctx context.Context, m marketplace.Message) error {
	_, err := s.q.Exec(ctx, `
        INSERT INTO messages (id, task_id, sender_id, receiver_id, content, message_type, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.TaskID, m.SenderID, m.ReceiverID, m.Content, m.MessageType, m.CreatedAt)
	if err != nil {
		return wrap("insert message", err)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, taskID string) ([]marketplace.Message, error) {
	rows, err := s.q.Query(ctx, `
        SELECT id, task_id, sender_id, receiver_id, content, message_type, created_at, read_at
        FROM messages
        WHERE task_id = $1
        ORDER BY created_at ASC, id`, taskID)
	if err != nil {
		return nil, wrap("list messages", err)
	}
	defer rows.Close()

	out := []marketplace.Message{}
	for rows.Next() {
		var m marketplace.Message
		if err := rows.Scan(&m.ID, &m.TaskID, &m.SenderID, &m.ReceiverID, &m.Content, &m.MessageType, &m.CreatedAt, &m.ReadAt); err != nil {
			return nil, wrap("scan message", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list messages", err)
	}
	return out, nil
}

func (s *Store) MarkRead(ctx context.Context, taskID, receiverID string, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.q.Exec(ctx, `
        UPDATE messages SET read_at = $3
        WHERE task_id = $1 AND receiver_id = $2 AND read_at IS NULL AND id = ANY($4::uuid[])`,
		taskID, receiverID, at, ids)
	if err != nil {
		return 0, wrap("mark messages read", err)
	}
	return tag.RowsAffected(), nil
}
