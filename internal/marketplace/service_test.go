package marketplace_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/skillhub/internal/apperr"
	"github.com/sudo-init-do/skillhub/internal/auth"
	"github.com/sudo-init-do/skillhub/internal/events"
	"github.com/sudo-init-do/skillhub/internal/marketplace"
	"github.com/sudo-init-do/skillhub/internal/store/memstore"
	"github.com/sudo-init-do/skillhub/internal/user"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

// last returns the most recent event of the given type.
func (p *recordingPublisher) last(typ string) *events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Type == typ {
			ev := p.events[i]
			return &ev
		}
	}
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type broadcast struct {
	taskID, eventType string
	data              any
}

type recordingThread struct {
	mu   sync.Mutex
	sent []broadcast
}

func (r *recordingThread) Broadcast(taskID, eventType string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, broadcast{taskID, eventType, data})
}

func (r *recordingThread) all() []broadcast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]broadcast(nil), r.sent...)
}

type fixture struct {
	ctx      context.Context
	store    *memstore.Store
	svc      *marketplace.Service
	events   *recordingPublisher
	thread   *recordingThread
	customer auth.Identity
	tasker   auth.Identity
	rival    auth.Identity
	outsider auth.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memstore.New())
}

func newFixtureWithStore(t *testing.T, store *memstore.Store, opts ...marketplace.Option) *fixture {
	t.Helper()
	f := &fixture{
		ctx:      context.Background(),
		store:    store,
		events:   &recordingPublisher{},
		thread:   &recordingThread{},
		customer: auth.Identity{UserID: uuid.NewString(), Role: auth.RoleCustomer},
		tasker:   auth.Identity{UserID: uuid.NewString(), Role: auth.RoleTasker},
		rival:    auth.Identity{UserID: uuid.NewString(), Role: auth.RoleTasker},
		outsider: auth.Identity{UserID: uuid.NewString(), Role: auth.RoleCustomer},
	}
	for _, id := range []auth.Identity{f.customer, f.tasker, f.rival, f.outsider} {
		store.PutProfile(user.Profile{ID: id.UserID, FullName: "User " + id.UserID[:8], Username: id.UserID[:8], Role: id.Role})
	}

	// Each reading of the clock advances one second so orderings are strict.
	var mu sync.Mutex
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}

	opts = append([]marketplace.Option{
		marketplace.WithPublisher(f.events),
		marketplace.WithThreadNotifier(f.thread),
		marketplace.WithClock(clock),
	}, opts...)
	f.svc = marketplace.NewService(store, opts...)
	return f
}

func (f *fixture) postTask(t *testing.T) marketplace.Task {
	t.Helper()
	task, err := f.svc.CreateTask(f.ctx, f.customer, marketplace.CreateTaskRequest{
		CategoryID:  "1",
		Title:       "Mount a TV",
		Description: "65 inch, drywall",
	})
	require.NoError(t, err)
	return task
}

func (f *fixture) apply(t *testing.T, taskID string, tasker auth.Identity) marketplace.Application {
	t.Helper()
	rate := 40.0
	a, err := f.svc.ApplyToTask(f.ctx, tasker, taskID, marketplace.ApplyRequest{Message: "I can do it", ProposedRate: &rate})
	require.NoError(t, err)
	return a
}

func (f *fixture) assigned(t *testing.T) (marketplace.Task, marketplace.Application) {
	t.Helper()
	task := f.postTask(t)
	a := f.apply(t, task.ID, f.tasker)
	_, err := f.svc.UpdateApplication(f.ctx, f.customer, a.ID, accept())
	require.NoError(t, err)
	got, err := f.store.GetTask(f.ctx, task.ID)
	require.NoError(t, err)
	return got, a
}

func (f *fixture) taskStatus(t *testing.T, id string) marketplace.TaskStatus {
	t.Helper()
	task, err := f.store.GetTask(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, task.Status == marketplace.TaskPosted, task.TaskerID == nil,
		"tasker_id must be null exactly while posted (status %s)", task.Status)
	return task.Status
}

func accept() marketplace.UpdateApplicationRequest {
	s := marketplace.ApplicationAccepted
	return marketplace.UpdateApplicationRequest{Status: &s}
}

func reject() marketplace.UpdateApplicationRequest {
	s := marketplace.ApplicationRejected
	return marketplace.UpdateApplicationRequest{Status: &s}
}

func statusPatch(s marketplace.TaskStatus) marketplace.UpdateTaskRequest {
	return marketplace.UpdateTaskRequest{Status: &s}
}

func ptr[T any](v T) *T { return &v }

func TestCreateTask(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateTask(f.ctx, f.tasker, marketplace.CreateTaskRequest{CategoryID: "1", Title: "Paint", Description: "x"})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	task := f.postTask(t)
	assert.Equal(t, f.customer.UserID, task.CustomerID)
	assert.Equal(t, marketplace.TaskPosted, task.Status)
	assert.Nil(t, task.TaskerID)
	assert.Equal(t, "medium", task.TaskSize)
	assert.Equal(t, "flexible", task.Urgency)
	assert.False(t, task.CreatedAt.IsZero())
	assert.Equal(t, []string{events.TaskCreated}, f.events.types())
}

func TestListTasksVisibility(t *testing.T) {
	f := newFixture(t)
	open := f.postTask(t)
	mine, _ := f.assigned(t)

	other, err := f.svc.CreateTask(f.ctx, f.outsider, marketplace.CreateTaskRequest{CategoryID: "2", Title: "Build desk", Description: "IKEA"})
	require.NoError(t, err)
	a := f.apply(t, other.ID, f.rival)
	_, err = f.svc.UpdateApplication(f.ctx, f.outsider, a.ID, accept())
	require.NoError(t, err)
	f.apply(t, open.ID, f.rival)

	got, err := f.svc.ListTasks(f.ctx, f.customer, marketplace.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, mine.ID, got[0].ID, "newest first")
	assert.Equal(t, open.ID, got[1].ID)
	assert.Equal(t, 1, got[0].ApplicationsCount)
	assert.Equal(t, 1, got[1].ApplicationsCount)
	require.NotNil(t, got[0].CustomerProfile)
	assert.Equal(t, f.customer.UserID, got[0].CustomerProfile.ID)
	require.NotNil(t, got[0].TaskerProfile)
	assert.Equal(t, f.tasker.UserID, got[0].TaskerProfile.ID)

	got, err = f.svc.ListTasks(f.ctx, f.tasker, marketplace.TaskFilter{})
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, s := range got {
		ids[i] = s.ID
	}
	assert.ElementsMatch(t, []string{open.ID, mine.ID}, ids, "assigned to someone else is hidden")

	got, err = f.svc.ListTasks(f.ctx, f.tasker, marketplace.TaskFilter{Status: "posted"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, open.ID, got[0].ID)

	got, err = f.svc.ListTasks(f.ctx, f.rival, marketplace.TaskFilter{CategoryID: "2"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, other.ID, got[0].ID)

	_, err = f.svc.ListTasks(f.ctx, f.customer, marketplace.TaskFilter{Status: "pending"})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestListTasksEmpty(t *testing.T) {
	f := newFixture(t)
	got, err := f.svc.ListTasks(f.ctx, f.customer, marketplace.TaskFilter{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGetTask(t *testing.T) {
	f := newFixture(t)
	task := f.postTask(t)
	f.apply(t, task.ID, f.tasker)
	f.apply(t, task.ID, f.rival)

	detail, err := f.svc.GetTask(f.ctx, f.outsider, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, detail.ID)
	assert.Equal(t, 2, detail.ApplicationsCount)
	require.Len(t, detail.Applications, 2)
	for _, a := range detail.Applications {
		require.NotNil(t, a.TaskerProfile)
		assert.Equal(t, a.TaskerID, a.TaskerProfile.ID)
	}
	assert.Nil(t, detail.TaskerProfile)

	_, err = f.svc.GetTask(f.ctx, f.customer, uuid.NewString())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestApplyToTask(t *testing.T) {
	f := newFixture(t)
	task := f.postTask(t)

	_, err := f.svc.ApplyToTask(f.ctx, f.customer, task.ID, marketplace.ApplyRequest{})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.ApplyToTask(f.ctx, f.tasker, uuid.NewString(), marketplace.ApplyRequest{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	a := f.apply(t, task.ID, f.tasker)
	assert.Equal(t, marketplace.ApplicationPending, a.Status)
	assert.Equal(t, task.ID, a.TaskID)
	assert.Equal(t, f.tasker.UserID, a.TaskerID)

	_, err = f.svc.ApplyToTask(f.ctx, f.tasker, task.ID, marketplace.ApplyRequest{Message: "again"})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	assert.Equal(t, []string{events.TaskCreated, events.ApplicationCreated}, f.events.types())
}

func TestApplyToOwnTask(t *testing.T) {
	f := newFixture(t)
	task := f.postTask(t)

	// Same account holding a tasker credential.
	self := auth.Identity{UserID: f.customer.UserID, Role: auth.RoleTasker}
	_, err := f.svc.ApplyToTask(f.ctx, self, task.ID, marketplace.ApplyRequest{})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestApplyToNonPostedTask(t *testing.T) {
	reach := map[marketplace.TaskStatus][]marketplace.TaskStatus{
		marketplace.TaskAssigned:   nil,
		marketplace.TaskInProgress: {marketplace.TaskInProgress},
		marketplace.TaskCompleted:  {marketplace.TaskInProgress, marketplace.TaskCompleted},
		marketplace.TaskCancelled:  {marketplace.TaskCancelled},
	}
	for status, steps := range reach {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			task, _ := f.assigned(t)
			for _, step := range steps {
				_, err := f.svc.UpdateTask(f.ctx, f.customer, task.ID, statusPatch(step))
				require.NoError(t, err)
			}
			require.Equal(t, status, f.taskStatus(t, task.ID))

			_, err := f.svc.ApplyToTask(f.ctx, f.rival, task.ID, marketplace.ApplyRequest{})
			assert.ErrorIs(t, err, apperr.ErrInvalidState)
		})
	}
}

func TestAcceptApplication(t *testing.T) {
	f := newFixture(t)
	task := f.postTask(t)
	chosen := f.apply(t, task.ID, f.tasker)
	sibling := f.apply(t, task.ID, f.rival)

	got, err := f.svc.UpdateApplication(f.ctx, f.customer, chosen.ID, accept())
	require.NoError(t, err)
	assert.Equal(t, marketplace.ApplicationAccepted, got.Status)

	stored, err := f.store.GetTask(f.ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, marketplace.TaskAssigned, stored.Status)
	require.NotNil(t, stored.TaskerID)
	assert.Equal(t, f.tasker.UserID, *stored.TaskerID)

	sib, err := f.store.GetApplication(f.ctx, sibling.ID)
	require.NoError(t, err)
	assert.Equal(t, marketplace.ApplicationPending, sib.Status, "siblings stay pending")

	_, err = f.svc.UpdateApplication(f.ctx, f.customer, sibling.ID, accept())
	assert.ErrorIs(t, err, apperr.ErrInvalidState, "task is no longer posted")

	_, err = f.svc.UpdateApplication(f.ctx, f.customer, chosen.ID, accept())
	assert.ErrorIs(t, err, apperr.ErrInvalidState, "accepting twice")

	accepted := f.events.last(events.ApplicationAccepted)
	require.NotNil(t, accepted)
	assert.Equal(t, chosen.ID, accepted.SubjectID)
	assert.Equal(t, f.tasker.UserID, accepted.RecipientID, "the chosen tasker is told")
}

func TestUpdateApplicationAuthorization(t *testing.T) {
	f := newFixture(t)
	task := f.postTask(t)
	a := f.apply(t, task.ID, f.tasker)

	_, err := f.svc.UpdateApplication(f.ctx, f.tasker, a.ID, accept())
	assert.ErrorIs(t, err, apperr.ErrForbidden, "applicant cannot accept")

	_, err = f.svc.UpdateApplication(f.ctx, f.outsider, a.ID, accept())
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.UpdateApplication(f.ctx, f.rival, a.ID, marketplace.UpdateApplicationRequest{Message: ptr("mine now")})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.UpdateApplication(f.ctx, f.customer, uuid.NewString(), accept())
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Equal(t, marketplace.TaskPosted, f.taskStatus(t, task.ID))
}

func TestRejectApplication(t *testing.T) {
	f := newFixture(t)
	task := f.postTask(t)
	a := f.apply(t, task.ID, f.tasker)

	got, err := f.svc.UpdateApplication(f.ctx, f.customer, a.ID, reject())
	require.NoError(t, err)
	assert.Equal(t, marketplace.ApplicationRejected, got.Status)
	assert.Equal(t, marketplace.TaskPosted, f.taskStatus(t, task.ID))

	_, err = f.svc.UpdateApplication(f.ctx, f.customer, a.ID, accept())
	assert.ErrorIs(t, err, apperr.ErrInvalidState, "decided applications cannot be accepted")
	assert.Contains(t, f.events.types(), events.ApplicationRejected)
}

func TestEditApplication(t *testing.T) {
	f := newFixture(t)
	task := f.postTask(t)
	a := f.apply(t, task.ID, f.tasker)

	got, err := f.svc.UpdateApplication(f.ctx, f.tasker, a.ID, marketplace.UpdateApplicationRequest{
		Message:           ptr("Can start tomorrow"),
		ProposedRate:      ptr(35.0),
		EstimatedDuration: ptr("2 hours"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Can start tomorrow", got.Message)
	assert.Equal(t, 35.0, *got.ProposedRate)
	assert.Equal(t, "2 hours", got.EstimatedDuration)
	assert.Equal(t, marketplace.ApplicationPending, got.Status)

	_, err = f.svc.UpdateApplication(f.ctx, f.tasker, a.ID, marketplace.UpdateApplicationRequest{})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = f.svc.UpdateApplication(f.ctx, f.customer, a.ID, marketplace.UpdateApplicationRequest{Message: ptr("lower please")})
	assert.ErrorIs(t, err, apperr.ErrForbidden, "customer cannot edit the bid")

	s := marketplace.ApplicationAccepted
	_, err = f.svc.UpdateApplication(f.ctx, f.customer, a.ID, marketplace.UpdateApplicationRequest{Status: &s, Message: ptr("x")})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = f.svc.UpdateApplication(f.ctx, f.customer, a.ID, accept())
	require.NoError(t, err)
	_, err = f.svc.UpdateApplication(f.ctx, f.tasker, a.ID, marketplace.UpdateApplicationRequest{Message: ptr("too late")})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestConcurrentAcceptAssignsOnce(t *testing.T) {
	f := newFixture(t)
	task := f.postTask(t)
	bids := []marketplace.Application{f.apply(t, task.ID, f.tasker), f.apply(t, task.ID, f.rival)}

	var wg sync.WaitGroup
	errs := make([]error, len(bids))
	for i, a := range bids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.svc.UpdateApplication(f.ctx, f.customer, id, accept())
		}(i, a.ID)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrInvalidState)
	}
	assert.Equal(t, 1, ok)

	stored, err := f.store.GetTask(f.ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TaskerID)

	apps, err := f.store.ListApplications(f.ctx, task.ID)
	require.NoError(t, err)
	for _, a := range apps {
		if a.Status == marketplace.ApplicationAccepted {
			assert.Equal(t, *stored.TaskerID, a.TaskerID)
		}
	}
}

// failingTxStore fails the application write inside accept's transaction.
type failingTxStore struct {
	*memstore.Store
}

func (s failingTxStore) WithTx(ctx context.Context, fn func(tx marketplace.Store) error) error {
	return s.Store.WithTx(ctx, func(tx marketplace.Store) error {
		return fn(failingApplicationWrites{tx})
	})
}

type failingApplicationWrites struct {
	marketplace.Store
}

func (failingApplicationWrites) UpdateApplication(context.Context, marketplace.Application, marketplace.ApplicationStatus) error {
	return apperr.Store("update application", errors.New("connection reset"))
}

// staleTaskStore serves one outdated read of a task as still posted, as if
// an accept committed right after the read.
type staleTaskStore struct {
	*memstore.Store
	served bool
}

func (s *staleTaskStore) GetTask(ctx context.Context, id string) (marketplace.Task, error) {
	t, err := s.Store.GetTask(ctx, id)
	if err == nil && !s.served {
		s.served = true
		t.Status = marketplace.TaskPosted
	}
	return t, err
}

func TestApplyRacingAcceptIsRefused(t *testing.T) {
	mem := memstore.New()
	f := newFixtureWithStore(t, mem)
	task, _ := f.assigned(t)

	svc := marketplace.NewService(&staleTaskStore{Store: mem})
	_, err := svc.ApplyToTask(f.ctx, f.rival, task.ID, marketplace.ApplyRequest{Message: "still open?"})
	require.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Equal(t, "task is not available for applications", apperr.Message(err))

	apps, err := mem.ListApplications(f.ctx, task.ID)
	require.NoError(t, err)
	for _, a := range apps {
		assert.NotEqual(t, f.rival.UserID, a.TaskerID)
	}
}

// unreachableProfiles fails every profile card lookup.
type unreachableProfiles struct {
	*memstore.Store
}

func (unreachableProfiles) LookupProfiles(context.Context, []string) (map[string]user.ApplicantProfile, error) {
	return nil, apperr.Store("lookup profiles", errors.New("connection reset"))
}

func TestSendMessageLookupFailureSavesNothing(t *testing.T) {
	mem := memstore.New()
	f := newFixtureWithStore(t, mem)
	task, _ := f.assigned(t)

	svc := marketplace.NewService(unreachableProfiles{mem})
	_, err := svc.SendMessage(f.ctx, f.customer, task.ID, marketplace.SendMessageRequest{Content: "hello"})
	require.ErrorIs(t, err, apperr.ErrStore)

	stored, err := mem.ListMessages(f.ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestAcceptIsAtomic(t *testing.T) {
	mem := memstore.New()
	f := newFixtureWithStore(t, mem)
	task := f.postTask(t)
	a := f.apply(t, task.ID, f.tasker)

	svc := marketplace.NewService(failingTxStore{mem})
	_, err := svc.UpdateApplication(f.ctx, f.customer, a.ID, accept())
	require.ErrorIs(t, err, apperr.ErrStore)

	assert.Equal(t, marketplace.TaskPosted, f.taskStatus(t, task.ID))
	stored, err := mem.GetApplication(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, marketplace.ApplicationPending, stored.Status)
}

func TestUpdateTaskTransitions(t *testing.T) {
	cases := []struct {
		name   string
		path   []marketplace.TaskStatus
		byTask bool
		want   error
	}{
		{name: "start", path: []marketplace.TaskStatus{marketplace.TaskInProgress}},
		{name: "start by tasker", path: []marketplace.TaskStatus{marketplace.TaskInProgress}, byTask: true},
		{name: "complete", path: []marketplace.TaskStatus{marketplace.TaskInProgress, marketplace.TaskCompleted}},
		{name: "cancel assigned", path: []marketplace.TaskStatus{marketplace.TaskCancelled}},
		{name: "cancel in progress", path: []marketplace.TaskStatus{marketplace.TaskInProgress, marketplace.TaskCancelled}},
		{name: "tasker cannot cancel", path: []marketplace.TaskStatus{marketplace.TaskCancelled}, byTask: true, want: apperr.ErrForbidden},
		{name: "skip to completed", path: []marketplace.TaskStatus{marketplace.TaskCompleted}, want: apperr.ErrInvalidState},
		{name: "back to posted", path: []marketplace.TaskStatus{marketplace.TaskPosted}, want: apperr.ErrInvalidState},
		{name: "reopen completed", path: []marketplace.TaskStatus{marketplace.TaskInProgress, marketplace.TaskCompleted, marketplace.TaskInProgress}, want: apperr.ErrInvalidState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			task, _ := f.assigned(t)
			caller := f.customer
			if tc.byTask {
				caller = f.tasker
			}

			var err error
			var got marketplace.Task
			for _, step := range tc.path {
				got, err = f.svc.UpdateTask(f.ctx, caller, task.ID, statusPatch(step))
				if err != nil {
					break
				}
			}
			if tc.want != nil {
				assert.ErrorIs(t, err, tc.want)
				return
			}
			require.NoError(t, err)
			last := tc.path[len(tc.path)-1]
			assert.Equal(t, last, got.Status)
			assert.Equal(t, last, f.taskStatus(t, task.ID))
			assert.Equal(t, last == marketplace.TaskCompleted, got.CompletedAt != nil)

			p, err := f.store.GetProfile(f.ctx, f.tasker.UserID)
			require.NoError(t, err)
			completed := 0
			if last == marketplace.TaskCompleted {
				completed = 1
			}
			assert.Equal(t, completed, p.TotalTasksCompleted)
		})
	}
}

func TestUpdateTaskPostedCannotBeCancelledOrAssigned(t *testing.T) {
	f := newFixture(t)
	task := f.postTask(t)

	_, err := f.svc.UpdateTask(f.ctx, f.customer, task.ID, statusPatch(marketplace.TaskCancelled))
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	_, err = f.svc.UpdateTask(f.ctx, f.customer, task.ID, statusPatch(marketplace.TaskAssigned))
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	got, err := f.svc.UpdateTask(f.ctx, f.customer, task.ID, statusPatch(marketplace.TaskPosted))
	require.NoError(t, err, "same status is a no-op")
	assert.Equal(t, marketplace.TaskPosted, got.Status)
	assert.Equal(t, marketplace.TaskPosted, f.taskStatus(t, task.ID))
}

func TestUpdateTaskFields(t *testing.T) {
	f := newFixture(t)
	task := f.postTask(t)

	_, err := f.svc.UpdateTask(f.ctx, f.outsider, task.ID, marketplace.UpdateTaskRequest{Title: ptr("Hijacked")})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.UpdateTask(f.ctx, f.tasker, task.ID, marketplace.UpdateTaskRequest{Title: ptr("Not yours")})
	assert.ErrorIs(t, err, apperr.ErrForbidden, "applicants are not participants before assignment")
	_, err = f.svc.UpdateTask(f.ctx, f.customer, uuid.NewString(), marketplace.UpdateTaskRequest{Title: ptr("x")})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := f.svc.UpdateTask(f.ctx, f.customer, task.ID, marketplace.UpdateTaskRequest{
		Title:  ptr("Mount two TVs"),
		Budget: ptr(120.0),
	})
	require.NoError(t, err)
	assert.Equal(t, "Mount two TVs", got.Title)
	assert.Equal(t, 120.0, *got.Budget)
	assert.Equal(t, task.Description, got.Description)
	assert.Equal(t, task.CustomerID, got.CustomerID)
	assert.True(t, got.UpdatedAt.After(task.UpdatedAt))

	assigned, _ := f.assigned(t)
	got, err = f.svc.UpdateTask(f.ctx, f.tasker, assigned.ID, marketplace.UpdateTaskRequest{SpecialInstructions: ptr("bring anchors")})
	require.NoError(t, err)
	assert.Equal(t, "bring anchors", got.SpecialInstructions)

	_, err = f.svc.UpdateTask(f.ctx, f.customer, assigned.ID, statusPatch(marketplace.TaskCancelled))
	require.NoError(t, err)
	_, err = f.svc.UpdateTask(f.ctx, f.customer, assigned.ID, marketplace.UpdateTaskRequest{Title: ptr("late edit")})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestListApplications(t *testing.T) {
	f := newFixture(t)
	task := f.postTask(t)
	f.apply(t, task.ID, f.tasker)

	apps, err := f.svc.ListApplications(f.ctx, f.customer, task.ID)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	require.NotNil(t, apps[0].TaskerProfile)
	assert.Equal(t, f.tasker.UserID, apps[0].TaskerProfile.ID)

	_, err = f.svc.ListApplications(f.ctx, f.tasker, task.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.ListApplications(f.ctx, f.customer, uuid.NewString())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSendMessageRequiresAssignment(t *testing.T) {
	f := newFixture(t)
	task := f.postTask(t)
	f.apply(t, task.ID, f.tasker)

	for _, caller := range []auth.Identity{f.customer, f.tasker, f.outsider} {
		_, err := f.svc.SendMessage(f.ctx, caller, task.ID, marketplace.SendMessageRequest{Content: "hi"})
		assert.ErrorIs(t, err, apperr.ErrInvalidState, "caller %s", caller.UserID)
	}

	_, err := f.svc.SendMessage(f.ctx, f.customer, uuid.NewString(), marketplace.SendMessageRequest{Content: "hi"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t)
	task, _ := f.assigned(t)

	m, err := f.svc.SendMessage(f.ctx, f.customer, task.ID, marketplace.SendMessageRequest{Content: "When can you come?"})
	require.NoError(t, err)
	assert.Equal(t, f.tasker.UserID, m.ReceiverID)
	assert.Equal(t, marketplace.MessageText, m.MessageType)
	assert.Nil(t, m.ReadAt)
	require.NotNil(t, m.SenderProfile)
	assert.Equal(t, f.customer.UserID, m.SenderProfile.ID)

	reply, err := f.svc.SendMessage(f.ctx, f.tasker, task.ID, marketplace.SendMessageRequest{Content: "photo", MessageType: marketplace.MessageImage})
	require.NoError(t, err)
	assert.Equal(t, f.customer.UserID, reply.ReceiverID)
	assert.Equal(t, marketplace.MessageImage, reply.MessageType)

	_, err = f.svc.SendMessage(f.ctx, f.rival, task.ID, marketplace.SendMessageRequest{Content: "me too"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	sent := f.thread.all()
	require.Len(t, sent, 2)
	assert.Equal(t, task.ID, sent[0].taskID)
	assert.Equal(t, marketplace.ThreadMessageNew, sent[0].eventType)
	assert.Equal(t, m, sent[0].data)

	assert.Contains(t, f.events.types(), events.MessageSent)
}

func TestListMessagesMarksCallerUnread(t *testing.T) {
	f := newFixture(t)
	task, _ := f.assigned(t)

	_, err := f.svc.SendMessage(f.ctx, f.customer, task.ID, marketplace.SendMessageRequest{Content: "one"})
	require.NoError(t, err)
	_, err = f.svc.SendMessage(f.ctx, f.customer, task.ID, marketplace.SendMessageRequest{Content: "two"})
	require.NoError(t, err)
	_, err = f.svc.SendMessage(f.ctx, f.tasker, task.ID, marketplace.SendMessageRequest{Content: "three"})
	require.NoError(t, err)

	_, err = f.svc.ListMessages(f.ctx, f.rival, task.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	msgs, err := f.svc.ListMessages(f.ctx, f.tasker, task.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"one", "two", "three"}, []string{msgs[0].Content, msgs[1].Content, msgs[2].Content})
	for _, m := range msgs {
		assert.Nil(t, m.ReadAt, "rows reflect the state before marking")
		require.NotNil(t, m.SenderProfile)
	}

	stored, err := f.store.ListMessages(f.ctx, task.ID)
	require.NoError(t, err)
	for _, m := range stored {
		if m.ReceiverID == f.tasker.UserID {
			assert.NotNil(t, m.ReadAt, "%q addressed to the caller", m.Content)
		} else {
			assert.Nil(t, m.ReadAt, "%q addressed to the other party", m.Content)
		}
	}

	reads := func() int {
		var n int
		for _, b := range f.thread.all() {
			if b.eventType == marketplace.ThreadMessageRead {
				n++
			}
		}
		return n
	}
	assert.Equal(t, 1, reads())

	// Second fetch finds nothing new to mark.
	msgs, err = f.svc.ListMessages(f.ctx, f.tasker, task.ID)
	require.NoError(t, err)
	for _, m := range msgs {
		if m.ReceiverID == f.tasker.UserID {
			assert.NotNil(t, m.ReadAt)
		}
	}
	assert.Equal(t, 1, reads())
}

// lateReplyStore delivers one message from the other party right after the
// thread has been read.
type lateReplyStore struct {
	*memstore.Store
	reply marketplace.Message
}

func (s *lateReplyStore) ListMessages(ctx context.Context, taskID string) ([]marketplace.Message, error) {
	msgs, err := s.Store.ListMessages(ctx, taskID)
	if err != nil || s.reply.ID == "" {
		return msgs, err
	}
	if err := s.Store.CreateMessage(ctx, s.reply); err != nil {
		return nil, err
	}
	s.reply = marketplace.Message{}
	return msgs, nil
}

func TestListMessagesLeavesLaterArrivalsUnread(t *testing.T) {
	mem := memstore.New()
	f := newFixtureWithStore(t, mem)
	task, _ := f.assigned(t)

	store := &lateReplyStore{Store: mem, reply: marketplace.Message{
		ID:          uuid.NewString(),
		TaskID:      task.ID,
		SenderID:    f.tasker.UserID,
		ReceiverID:  f.customer.UserID,
		Content:     "late",
		MessageType: marketplace.MessageText,
		CreatedAt:   time.Now().UTC(),
	}}
	thread := &recordingThread{}
	svc := marketplace.NewService(store, marketplace.WithThreadNotifier(thread))

	msgs, err := svc.ListMessages(f.ctx, f.customer, task.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, thread.all(), "nothing the caller saw was unread")

	stored, err := mem.ListMessages(f.ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Nil(t, stored[0].ReadAt, "a message the caller never received stays unread")

	msgs, err = svc.ListMessages(f.ctx, f.customer, task.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	stored, err = mem.ListMessages(f.ctx, task.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored[0].ReadAt)
}

func TestAuthorizeThread(t *testing.T) {
	f := newFixture(t)
	task, _ := f.assigned(t)

	assert.NoError(t, f.svc.AuthorizeThread(f.ctx, f.customer, task.ID))
	assert.NoError(t, f.svc.AuthorizeThread(f.ctx, f.tasker, task.ID))
	assert.ErrorIs(t, f.svc.AuthorizeThread(f.ctx, f.rival, task.ID), apperr.ErrForbidden)
	assert.ErrorIs(t, f.svc.AuthorizeThread(f.ctx, f.customer, uuid.NewString()), apperr.ErrNotFound)
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker down")

	task := f.postTask(t)
	a := f.apply(t, task.ID, f.tasker)
	_, err := f.svc.UpdateApplication(f.ctx, f.customer, a.ID, accept())
	require.NoError(t, err)
	assert.Equal(t, marketplace.TaskAssigned, f.taskStatus(t, task.ID))
}
