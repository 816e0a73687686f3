package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sudo-init-do/skillhub/internal/events"
)

// Enqueuer is the part of *asynq.Client the publisher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Publisher is an events.Publisher that schedules one email job per event
// that has a recipient. The job carries the event; the worker resolves
// addresses when it runs.
type Publisher struct {
	client Enqueuer
}

func NewPublisher(client Enqueuer) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, ev events.Event) error {
	typ, ok := jobType(ev.Type)
	if !ok || ev.RecipientID == "" {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.client.EnqueueContext(ctx, asynq.NewTask(typ, payload),
		asynq.Queue(queueEmails),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
		// One email per subject, even when an event is published twice.
		asynq.TaskID(typ+":"+ev.SubjectID),
		asynq.Retention(24*time.Hour),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", typ, err)
	}
	return nil
}
