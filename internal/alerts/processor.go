package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/sudo-init-do/skillhub/internal/apperr"
	"github.com/sudo-init-do/skillhub/internal/events"
	"github.com/sudo-init-do/skillhub/internal/marketplace"
	"github.com/sudo-init-do/skillhub/internal/user"
)

// Directory resolves the names and addresses an email needs.
type Directory interface {
	GetProfile(ctx context.Context, id string) (user.Profile, error)
	GetTask(ctx context.Context, id string) (marketplace.Task, error)
}

// Processor handles email jobs.
type Processor struct {
	dir    Directory
	mailer Mailer
	log    *slog.Logger
}

func NewProcessor(dir Directory, mailer Mailer, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{dir: dir, mailer: mailer, log: logger}
}

// Mux routes every job type to the processor.
func (p *Processor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for _, typ := range []string{TaskApplicationReceived, TaskApplicationAccepted, TaskApplicationRejected, TaskMessageNew, TaskReviewReceived} {
		mux.HandleFunc(typ, p.ProcessTask)
	}
	return mux
}

func (p *Processor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var ev events.Event
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	env, err := p.compose(ctx, t.Type(), ev)
	if errors.Is(err, apperr.ErrNotFound) {
		// The task or an account is gone; retrying will not bring it back.
		p.log.WarnContext(ctx, "drop email job", "type", t.Type(), "task_id", ev.TaskID, "error", err)
		return nil
	}
	if err != nil {
		return err
	}
	if env.To == "" {
		p.log.InfoContext(ctx, "recipient has no email", "type", t.Type(), "user_id", ev.RecipientID)
		return nil
	}

	if err := p.mailer.Send(ctx, env); err != nil {
		return fmt.Errorf("send %s: %w", t.Type(), err)
	}
	p.log.InfoContext(ctx, "email sent", "type", t.Type(), "task_id", ev.TaskID, "user_id", ev.RecipientID)
	return nil
}

func (p *Processor) compose(ctx context.Context, typ string, ev events.Event) (Envelope, error) {
	task, err := p.dir.GetTask(ctx, ev.TaskID)
	if err != nil {
		return Envelope{}, err
	}
	to, err := p.dir.GetProfile(ctx, ev.RecipientID)
	if err != nil {
		return Envelope{}, err
	}
	from, err := p.dir.GetProfile(ctx, ev.ActorID)
	if err != nil {
		return Envelope{}, err
	}

	env := Envelope{To: to.Email, Name: to.FullName}
	var line string
	switch typ {
	case TaskApplicationReceived:
		env.Subject = "New application: " + task.Title
		line = fmt.Sprintf("%s applied to your task %q. Review the application and pick a tasker when you are ready.", displayName(from), task.Title)
	case TaskApplicationAccepted:
		env.Subject = "You got the job: " + task.Title
		line = fmt.Sprintf("%s accepted your application for %q. You can now message them from the task page.", displayName(from), task.Title)
	case TaskApplicationRejected:
		env.Subject = "Update on your application: " + task.Title
		line = fmt.Sprintf("%s went with another option for %q. Thanks for applying.", displayName(from), task.Title)
	case TaskMessageNew:
		env.Subject = "New message about " + task.Title
		line = fmt.Sprintf("%s sent you a message about %q. Open the task to reply.", displayName(from), task.Title)
	case TaskReviewReceived:
		env.Subject = "New review: " + task.Title
		line = fmt.Sprintf("%s reviewed your work on %q. It now shows on your public profile.", displayName(from), task.Title)
	default:
		return Envelope{}, fmt.Errorf("unknown email job %q: %w", typ, asynq.SkipRetry)
	}
	env.Body = fmt.Sprintf("Hello %s,\n\n%s\n\nThe SkillHub team", displayName(to), line)
	return env, nil
}

func displayName(p user.Profile) string {
	if p.FullName != "" {
		return p.FullName
	}
	if p.Username != "" {
		return p.Username
	}
	return "there"
}

// NewServer builds the worker that drains the email queue.
func NewServer(redis asynq.RedisConnOpt, logger *slog.Logger) *asynq.Server {
	return asynq.NewServer(redis, asynq.Config{
		Concurrency: 5,
		Queues:      map[string]int{queueEmails: 1},
		Logger:      asynqLogger{logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			logger.ErrorContext(ctx, "email job failed", "type", t.Type(), "error", err)
		}),
	})
}

// asynqLogger routes asynq's own logging through slog.
type asynqLogger struct {
	l *slog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...), "component", "asynq") }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...), "component", "asynq") }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...), "component", "asynq") }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...), "component", "asynq") }
func (a asynqLogger) Fatal(args ...interface{}) {
	a.l.Error(fmt.Sprint(args...), "component", "asynq")
	os.Exit(1)
}
