// Package marketplace implements the task lifecycle: posting, applications,
// assignment and the task message thread. Every role, ownership and state
// rule lives here; stores only persist.
package marketplace

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sudo-init-do/skillhub/internal/apperr"
	"github.com/sudo-init-do/skillhub/internal/auth"
	"github.com/sudo-init-do/skillhub/internal/events"
	"github.com/sudo-init-do/skillhub/internal/user"
)

// Thread event types pushed to websocket subscribers.
const (
	ThreadMessageNew  = "message_new"
	ThreadMessageRead = "message_read"
)

// ThreadNotifier pushes realtime events to a task's message thread.
type ThreadNotifier interface {
	Broadcast(taskID, eventType string, data any)
}

type Service struct {
	store  Store
	events events.Publisher
	thread ThreadNotifier
	log    *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithPublisher(p events.Publisher) Option { return func(s *Service) { s.events = p } }

func WithThreadNotifier(n ThreadNotifier) Option { return func(s *Service) { s.thread = n } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		events: events.Nop{},
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListTasks returns the tasks visible to the caller, newest first: a customer
// sees their own tasks, a tasker sees open tasks and tasks assigned to them.
func (s *Service) ListTasks(ctx context.Context, id auth.Identity, f TaskFilter) ([]TaskSummary, error) {
	q := TaskQuery{CategoryID: f.CategoryID}
	if f.Status != "" {
		status := TaskStatus(f.Status)
		if !status.Valid() {
			return nil, apperr.Invalid("unknown task status %q", f.Status)
		}
		q.Status = status
	}
	switch id.Role {
	case auth.RoleCustomer:
		q.CustomerID = id.UserID
	case auth.RoleTasker:
		q.VisibleToTasker = id.UserID
	default:
		return nil, apperr.Forbidden("unknown role")
	}

	tasks, err := s.store.ListTasks(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return []TaskSummary{}, nil
	}

	ids := make([]string, len(tasks))
	people := make([]string, 0, len(tasks)*2)
	for i, t := range tasks {
		ids[i] = t.ID
		people = append(people, t.CustomerID)
		if t.TaskerID != nil {
			people = append(people, *t.TaskerID)
		}
	}
	counts, err := s.store.CountApplications(ctx, ids)
	if err != nil {
		return nil, err
	}
	cards, err := s.cards(ctx, people...)
	if err != nil {
		return nil, err
	}

	out := make([]TaskSummary, len(tasks))
	for i, t := range tasks {
		out[i] = summarize(t, counts[t.ID], cards)
	}
	return out, nil
}

func (s *Service) CreateTask(ctx context.Context, id auth.Identity, req CreateTaskRequest) (Task, error) {
	if !id.IsCustomer() {
		return Task{}, apperr.Forbidden("only customers can create tasks")
	}

	now := s.clock()
	t := Task{
		ID:                  uuid.NewString(),
		CustomerID:          id.UserID,
		CategoryID:          req.CategoryID,
		Title:               req.Title,
		Description:         req.Description,
		Budget:              req.Budget,
		Location:            req.Location,
		TaskSize:            orDefault(req.TaskSize, "medium"),
		Urgency:             orDefault(req.Urgency, "flexible"),
		EstimatedHours:      req.EstimatedHours,
		SpecialInstructions: req.SpecialInstructions,
		Status:              TaskPosted,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.store.CreateTask(ctx, t); err != nil {
		return Task{}, err
	}

	s.publish(ctx, events.Event{Type: events.TaskCreated, TaskID: t.ID, ActorID: id.UserID, Status: string(t.Status), OccurredAt: now})
	return t, nil
}

// GetTask returns a task with every application on it. Any authenticated
// caller may read any task.
func (s *Service) GetTask(ctx context.Context, id auth.Identity, taskID string) (TaskDetail, error) {
	t, err := s.getTask(ctx, taskID)
	if err != nil {
		return TaskDetail{}, err
	}
	apps, err := s.store.ListApplications(ctx, taskID)
	if err != nil {
		return TaskDetail{}, err
	}

	people := []string{t.CustomerID}
	if t.TaskerID != nil {
		people = append(people, *t.TaskerID)
	}
	for _, a := range apps {
		people = append(people, a.TaskerID)
	}
	cards, err := s.cards(ctx, people...)
	if err != nil {
		return TaskDetail{}, err
	}

	return TaskDetail{
		TaskSummary:  summarize(t, len(apps), cards),
		Applications: applicationViews(apps, cards),
	}, nil
}

// UpdateTask merges a patch from the customer or the assigned tasker.
// A status in the patch must be a legal lifecycle step.
func (s *Service) UpdateTask(ctx context.Context, id auth.Identity, taskID string, req UpdateTaskRequest) (Task, error) {
	t, err := s.getTask(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if !t.IsParticipant(id.UserID) {
		return Task{}, apperr.Forbidden("not authorized to update this task")
	}

	now := s.clock()
	expect := t.Status

	if req.hasFieldEdits() {
		if t.Status == TaskCompleted || t.Status == TaskCancelled {
			return Task{}, apperr.InvalidState("a %s task can no longer be edited", t.Status)
		}
		applyTaskPatch(&t, req)
	}
	if req.Status != nil && *req.Status != t.Status {
		if err := transition(&t, id, *req.Status, now); err != nil {
			return Task{}, err
		}
	}
	t.UpdatedAt = now

	err = s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.UpdateTask(ctx, t, expect); err != nil {
			return err
		}
		if t.Status == TaskCompleted && expect != TaskCompleted && t.TaskerID != nil {
			return tx.CountCompletion(ctx, *t.TaskerID)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return Task{}, apperr.InvalidState("task changed while updating; reload and retry")
		}
		return Task{}, err
	}

	s.publish(ctx, events.Event{Type: events.TaskUpdated, TaskID: t.ID, ActorID: id.UserID, Status: string(t.Status), OccurredAt: now})
	return t, nil
}

// ListApplications is restricted to the task's customer.
func (s *Service) ListApplications(ctx context.Context, id auth.Identity, taskID string) ([]ApplicationView, error) {
	t, err := s.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.CustomerID != id.UserID {
		return nil, apperr.Forbidden("not authorized to view applications")
	}

	apps, err := s.store.ListApplications(ctx, taskID)
	if err != nil {
		return nil, err
	}
	people := make([]string, len(apps))
	for i, a := range apps {
		people[i] = a.TaskerID
	}
	cards, err := s.cards(ctx, people...)
	if err != nil {
		return nil, err
	}
	return applicationViews(apps, cards), nil
}

func (s *Service) ApplyToTask(ctx context.Context, id auth.Identity, taskID string, req ApplyRequest) (Application, error) {
	if !id.IsTasker() {
		return Application{}, apperr.Forbidden("only taskers can apply to tasks")
	}
	t, err := s.getTask(ctx, taskID)
	if err != nil {
		return Application{}, err
	}
	if t.Status != TaskPosted {
		return Application{}, apperr.InvalidState("task is not available for applications")
	}
	if t.CustomerID == id.UserID {
		return Application{}, apperr.InvalidState("cannot apply to your own task")
	}

	now := s.clock()
	a := Application{
		ID:                uuid.NewString(),
		TaskID:            t.ID,
		TaskerID:          id.UserID,
		Message:           req.Message,
		ProposedRate:      req.ProposedRate,
		EstimatedDuration: req.EstimatedDuration,
		Status:            ApplicationPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreateApplication(ctx, a); err != nil {
		if !errors.Is(err, apperr.ErrConflict) {
			return Application{}, err
		}
		// Either a repeat bid or the task left posted after it was read.
		if cur, gerr := s.getTask(ctx, taskID); gerr == nil && cur.Status != TaskPosted {
			return Application{}, apperr.InvalidState("task is not available for applications")
		}
		return Application{}, apperr.InvalidState("you have already applied to this task")
	}

	s.publish(ctx, events.Event{Type: events.ApplicationCreated, TaskID: t.ID, ActorID: id.UserID, SubjectID: a.ID, RecipientID: t.CustomerID, Status: string(a.Status), OccurredAt: now})
	return a, nil
}

// UpdateApplication lets the task's customer accept or reject a pending
// application, and lets the applicant edit their bid while the task is open.
// Sibling applications are left untouched on accept.
func (s *Service) UpdateApplication(ctx context.Context, id auth.Identity, applicationID string, req UpdateApplicationRequest) (Application, error) {
	a, err := s.store.GetApplication(ctx, applicationID)
	if errors.Is(err, apperr.ErrNotFound) {
		return Application{}, apperr.NotFound("application not found")
	}
	if err != nil {
		return Application{}, err
	}
	t, err := s.getTask(ctx, a.TaskID)
	if err != nil {
		return Application{}, err
	}

	isOwner := t.CustomerID == id.UserID
	isApplicant := a.TaskerID == id.UserID
	if !isOwner && !isApplicant {
		return Application{}, apperr.Forbidden("not authorized to update this application")
	}

	now := s.clock()

	if req.Status != nil {
		if !isOwner {
			return Application{}, apperr.Forbidden("only the task owner can accept or reject applications")
		}
		if req.hasFieldEdits() {
			return Application{}, apperr.Invalid("status changes cannot be combined with field edits")
		}
		if a.Status != ApplicationPending {
			return Application{}, apperr.InvalidState("application has already been %s", a.Status)
		}
		if *req.Status == ApplicationAccepted {
			return s.accept(ctx, id, t, a, now)
		}
		return s.reject(ctx, id, a, now)
	}

	if !isApplicant {
		return Application{}, apperr.Forbidden("only the applicant can edit an application")
	}
	if !req.hasFieldEdits() {
		return Application{}, apperr.Invalid("no fields to update")
	}
	if t.Status != TaskPosted || a.Status != ApplicationPending {
		return Application{}, apperr.InvalidState("application can no longer be edited")
	}
	if req.Message != nil {
		a.Message = *req.Message
	}
	if req.ProposedRate != nil {
		a.ProposedRate = req.ProposedRate
	}
	if req.EstimatedDuration != nil {
		a.EstimatedDuration = *req.EstimatedDuration
	}
	a.UpdatedAt = now

	if err := s.store.UpdateApplication(ctx, a, ApplicationPending); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return Application{}, apperr.InvalidState("application can no longer be edited")
		}
		return Application{}, err
	}
	return a, nil
}

// accept assigns the task and marks the application accepted in one
// transaction. The task write only matches while the task is still posted,
// so a concurrent second accept fails instead of overwriting the assignment.
func (s *Service) accept(ctx context.Context, id auth.Identity, t Task, a Application, now time.Time) (Application, error) {
	if t.Status != TaskPosted {
		return Application{}, apperr.InvalidState("task is no longer open for applications")
	}

	err := s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.AssignTask(ctx, t.ID, a.TaskerID, now); err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				return apperr.InvalidState("task is no longer open for applications")
			}
			return err
		}
		a.Status = ApplicationAccepted
		a.UpdatedAt = now
		if err := tx.UpdateApplication(ctx, a, ApplicationPending); err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				return apperr.InvalidState("application has already been decided")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return Application{}, err
	}

	s.publish(ctx, events.Event{Type: events.ApplicationAccepted, TaskID: t.ID, ActorID: id.UserID, SubjectID: a.ID, RecipientID: a.TaskerID, Status: string(TaskAssigned), OccurredAt: now})
	return a, nil
}

func (s *Service) reject(ctx context.Context, id auth.Identity, a Application, now time.Time) (Application, error) {
	a.Status = ApplicationRejected
	a.UpdatedAt = now
	if err := s.store.UpdateApplication(ctx, a, ApplicationPending); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return Application{}, apperr.InvalidState("application has already been decided")
		}
		return Application{}, err
	}

	s.publish(ctx, events.Event{Type: events.ApplicationRejected, TaskID: a.TaskID, ActorID: id.UserID, SubjectID: a.ID, RecipientID: a.TaskerID, Status: string(a.Status), OccurredAt: now})
	return a, nil
}

// ListMessages returns the thread oldest first, then marks the returned
// unread messages addressed to the caller as read. Messages that arrive
// after the read stay unread. The returned rows reflect the state before
// marking.
func (s *Service) ListMessages(ctx context.Context, id auth.Identity, taskID string) ([]MessageView, error) {
	t, err := s.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !t.IsParticipant(id.UserID) {
		return nil, apperr.Forbidden("not authorized to view messages")
	}

	msgs, err := s.store.ListMessages(ctx, taskID)
	if err != nil {
		return nil, err
	}
	people := make([]string, len(msgs))
	var unread []string
	for i, m := range msgs {
		people[i] = m.SenderID
		if m.ReceiverID == id.UserID && m.ReadAt == nil {
			unread = append(unread, m.ID)
		}
	}
	cards, err := s.cards(ctx, people...)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	marked, err := s.store.MarkRead(ctx, taskID, id.UserID, unread, now)
	if err != nil {
		return nil, err
	}
	if marked > 0 && s.thread != nil {
		s.thread.Broadcast(taskID, ThreadMessageRead, map[string]any{
			"task_id":   taskID,
			"reader_id": id.UserID,
			"count":     marked,
			"read_at":   now,
		})
	}

	out := make([]MessageView, len(msgs))
	for i, m := range msgs {
		out[i] = MessageView{Message: m, SenderProfile: publicCard(cards, m.SenderID)}
	}
	return out, nil
}

// SendMessage posts to the thread between the customer and the assigned
// tasker. The receiver is always the other party.
func (s *Service) SendMessage(ctx context.Context, id auth.Identity, taskID string, req SendMessageRequest) (MessageView, error) {
	t, err := s.getTask(ctx, taskID)
	if err != nil {
		return MessageView{}, err
	}
	// Checked before participation: a thread does not exist until assignment.
	if t.TaskerID == nil {
		return MessageView{}, apperr.InvalidState("task must have both customer and tasker to send messages")
	}
	if !t.IsParticipant(id.UserID) {
		return MessageView{}, apperr.Forbidden("not authorized to send messages")
	}

	receiver := t.CustomerID
	if id.UserID == t.CustomerID {
		receiver = *t.TaskerID
	}
	// Resolved first so a failed lookup leaves nothing persisted.
	cards, err := s.cards(ctx, id.UserID)
	if err != nil {
		return MessageView{}, err
	}

	now := s.clock()
	m := Message{
		ID:          uuid.NewString(),
		TaskID:      t.ID,
		SenderID:    id.UserID,
		ReceiverID:  receiver,
		Content:     req.Content,
		MessageType: req.MessageType,
		CreatedAt:   now,
	}
	if m.MessageType == "" {
		m.MessageType = MessageText
	}
	if err := s.store.CreateMessage(ctx, m); err != nil {
		return MessageView{}, err
	}
	view := MessageView{Message: m, SenderProfile: publicCard(cards, id.UserID)}

	if s.thread != nil {
		s.thread.Broadcast(t.ID, ThreadMessageNew, view)
	}
	s.publish(ctx, events.Event{Type: events.MessageSent, TaskID: t.ID, ActorID: id.UserID, SubjectID: m.ID, RecipientID: m.ReceiverID, OccurredAt: now})
	return view, nil
}

// AuthorizeThread checks that the caller may subscribe to a task's thread.
func (s *Service) AuthorizeThread(ctx context.Context, id auth.Identity, taskID string) error {
	t, err := s.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !t.IsParticipant(id.UserID) {
		return apperr.Forbidden("not a participant in this task")
	}
	return nil
}

func (s *Service) getTask(ctx context.Context, id string) (Task, error) {
	t, err := s.store.GetTask(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return Task{}, apperr.NotFound("task not found")
	}
	return t, err
}

func (s *Service) cards(ctx context.Context, ids ...string) (map[string]user.ApplicantProfile, error) {
	seen := make(map[string]struct{}, len(ids))
	uniq := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	if len(uniq) == 0 {
		return map[string]user.ApplicantProfile{}, nil
	}
	return s.store.LookupProfiles(ctx, uniq)
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// publish never fails the request: the state change is already committed.
func (s *Service) publish(ctx context.Context, ev events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.WarnContext(ctx, "publish lifecycle event", "type", ev.Type, "task_id", ev.TaskID, "error", err)
	}
}

// transition applies a status change requested through UpdateTask.
// Assignment only happens through accepting an application.
func transition(t *Task, id auth.Identity, to TaskStatus, now time.Time) error {
	from := t.Status
	switch {
	case from == TaskAssigned && to == TaskInProgress:
	case from == TaskInProgress && to == TaskCompleted:
		t.CompletedAt = &now
	case (from == TaskAssigned || from == TaskInProgress) && to == TaskCancelled:
		if t.CustomerID != id.UserID {
			return apperr.Forbidden("only the customer can cancel a task")
		}
	default:
		return apperr.InvalidState("cannot move a task from %s to %s", from, to)
	}
	t.Status = to
	return nil
}

func applyTaskPatch(t *Task, req UpdateTaskRequest) {
	if req.CategoryID != nil {
		t.CategoryID = *req.CategoryID
	}
	if req.Title != nil {
		t.Title = *req.Title
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Budget != nil {
		t.Budget = req.Budget
	}
	if req.Location != nil {
		t.Location = *req.Location
	}
	if req.TaskSize != nil {
		t.TaskSize = *req.TaskSize
	}
	if req.Urgency != nil {
		t.Urgency = *req.Urgency
	}
	if req.EstimatedHours != nil {
		t.EstimatedHours = req.EstimatedHours
	}
	if req.SpecialInstructions != nil {
		t.SpecialInstructions = *req.SpecialInstructions
	}
}

func summarize(t Task, count int, cards map[string]user.ApplicantProfile) TaskSummary {
	sum := TaskSummary{
		Task:              t,
		ApplicationsCount: count,
		CustomerProfile:   publicCard(cards, t.CustomerID),
	}
	if t.TaskerID != nil {
		sum.TaskerProfile = publicCard(cards, *t.TaskerID)
	}
	return sum
}

func applicationViews(apps []Application, cards map[string]user.ApplicantProfile) []ApplicationView {
	out := make([]ApplicationView, len(apps))
	for i, a := range apps {
		out[i] = ApplicationView{Application: a}
		if c, ok := cards[a.TaskerID]; ok {
			out[i].TaskerProfile = &c
		}
	}
	return out
}

func publicCard(cards map[string]user.ApplicantProfile, id string) *user.PublicProfile {
	c, ok := cards[id]
	if !ok {
		return nil
	}
	p := c.PublicProfile
	return &p
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
