// Package memstore keeps every store in process memory. It backs the service
// tests and STORE_DRIVER=memory for local runs; data is lost on exit.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sudo-init-do/skillhub/internal/apperr"
	"github.com/sudo-init-do/skillhub/internal/auth"
	"github.com/sudo-init-do/skillhub/internal/catalog"
	"github.com/sudo-init-do/skillhub/internal/marketplace"
	"github.com/sudo-init-do/skillhub/internal/user"
)

var (
	_ marketplace.Store = (*Store)(nil)
	_ user.ProfileStore = (*Store)(nil)
	_ auth.RoleLookup   = (*Store)(nil)
	_ catalog.Store     = (*Store)(nil)
)

type state struct {
	profiles   map[string]user.Profile
	categories []catalog.Category
	tasks      map[string]marketplace.Task
	taskOrder  []string
	apps       map[string]marketplace.Application
	appOrder   []string
	messages   []marketplace.Message
	reviews    []marketplace.Review
}

func (st *state) clone() *state {
	return &state{
		profiles:   cloneMap(st.profiles),
		categories: slices.Clone(st.categories),
		tasks:      cloneMap(st.tasks),
		taskOrder:  slices.Clone(st.taskOrder),
		apps:       cloneMap(st.apps),
		appOrder:   slices.Clone(st.appOrder),
		messages:   slices.Clone(st.messages),
		reviews:    slices.Clone(st.reviews),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store is safe for concurrent use. A transaction works on a copy of the
// state and swaps it in on success, holding the lock throughout.
type Store struct {
	mu   *sync.Mutex
	st   *state
	inTx bool
}

// New returns an empty store seeded with the default categories.
func New() *Store {
	return &Store{
		mu: &sync.Mutex{},
		st: &state{
			profiles:   map[string]user.Profile{},
			categories: catalog.Defaults(),
			tasks:      map[string]marketplace.Task{},
			apps:       map[string]marketplace.Application{},
		},
	}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) WithTx(ctx context.Context, fn func(tx marketplace.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{mu: s.mu, st: s.st.clone(), inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return apperr.Store("commit", err)
	}
	s.st = tx.st
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// PutProfile inserts or replaces a profile. Profiles are created by the
// identity provider, so only seeding code calls this.
func (s *Store) PutProfile(p user.Profile) {
	defer s.lock()()
	s.st.profiles[p.ID] = p
}

func (s *Store) GetProfile(_ context.Context, id string) (user.Profile, error) {
	defer s.lock()()
	p, ok := s.st.profiles[id]
	if !ok {
		return user.Profile{}, fmt.Errorf("profile %s: %w", id, apperr.ErrNotFound)
	}
	return p, nil
}

func (s *Store) UpdateProfile(_ context.Context, id string, req user.UpdateProfileRequest, at time.Time) (user.Profile, error) {
	defer s.lock()()
	p, ok := s.st.profiles[id]
	if !ok {
		return user.Profile{}, fmt.Errorf("profile %s: %w", id, apperr.ErrNotFound)
	}
	if req.Username != nil {
		for otherID, other := range s.st.profiles {
			if otherID != id && other.Username == *req.Username {
				return user.Profile{}, fmt.Errorf("username %q: %w", *req.Username, apperr.ErrConflict)
			}
		}
	}
	p.Apply(req)
	p.UpdatedAt = at
	s.st.profiles[id] = p
	return p, nil
}

func (s *Store) ProfileRole(_ context.Context, userID string) (auth.Role, error) {
	defer s.lock()()
	p, ok := s.st.profiles[userID]
	if !ok {
		return "", fmt.Errorf("profile %s: %w", userID, apperr.ErrNotFound)
	}
	return p.Role, nil
}

func (s *Store) LookupProfiles(_ context.Context, ids []string) (map[string]user.ApplicantProfile, error) {
	defer s.lock()()
	out := make(map[string]user.ApplicantProfile, len(ids))
	for _, id := range ids {
		if p, ok := s.st.profiles[id]; ok {
			out[id] = p.Applicant()
		}
	}
	return out, nil
}

func (s *Store) ListCategories(context.Context) ([]catalog.Category, error) {
	defer s.lock()()
	out := slices.Clone(s.st.categories)
	slices.SortStableFunc(out, func(a, b catalog.Category) int { return a.SortOrder - b.SortOrder })
	return out, nil
}

func (s *Store) hasCategory(id string) bool {
	return slices.ContainsFunc(s.st.categories, func(c catalog.Category) bool { return c.ID == id })
}

func (s *Store) CreateTask(_ context.Context, t marketplace.Task) error {
	defer s.lock()()
	if _, dup := s.st.tasks[t.ID]; dup {
		return fmt.Errorf("task %s: %w", t.ID, apperr.ErrConflict)
	}
	if !s.hasCategory(t.CategoryID) {
		return apperr.Invalid("unknown category_id %q", t.CategoryID)
	}
	s.st.tasks[t.ID] = t
	s.st.taskOrder = append(s.st.taskOrder, t.ID)
	return nil
}

func (s *Store) GetTask(_ context.Context, id string) (marketplace.Task, error) {
	defer s.lock()()
	t, ok := s.st.tasks[id]
	if !ok {
		return marketplace.Task{}, fmt.Errorf("task %s: %w", id, apperr.ErrNotFound)
	}
	return t, nil
}

func (s *Store) ListTasks(_ context.Context, q marketplace.TaskQuery) ([]marketplace.Task, error) {
	defer s.lock()()
	out := []marketplace.Task{}
	// Newest insert first so equal timestamps keep a stable newest-first order.
	for i := len(s.st.taskOrder) - 1; i >= 0; i-- {
		t := s.st.tasks[s.st.taskOrder[i]]
		if q.CustomerID != "" && t.CustomerID != q.CustomerID {
			continue
		}
		if q.VisibleToTasker != "" && t.TaskerID != nil && *t.TaskerID != q.VisibleToTasker {
			continue
		}
		if q.CategoryID != "" && t.CategoryID != q.CategoryID {
			continue
		}
		if q.Status != "" && t.Status != q.Status {
			continue
		}
		out = append(out, t)
	}
	slices.SortStableFunc(out, func(a, b marketplace.Task) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *Store) UpdateTask(_ context.Context, t marketplace.Task, expect marketplace.TaskStatus) error {
	defer s.lock()()
	cur, ok := s.st.tasks[t.ID]
	if !ok {
		return fmt.Errorf("task %s: %w", t.ID, apperr.ErrNotFound)
	}
	if cur.Status != expect {
		return fmt.Errorf("task %s is %s, not %s: %w", t.ID, cur.Status, expect, apperr.ErrConflict)
	}
	if !s.hasCategory(t.CategoryID) {
		return apperr.Invalid("unknown category_id %q", t.CategoryID)
	}
	t.CustomerID = cur.CustomerID
	t.TaskerID = cur.TaskerID
	t.CreatedAt = cur.CreatedAt
	s.st.tasks[t.ID] = t
	return nil
}

func (s *Store) AssignTask(_ context.Context, taskID, taskerID string, at time.Time) error {
	defer s.lock()()
	t, ok := s.st.tasks[taskID]
	if !ok || t.Status != marketplace.TaskPosted {
		return fmt.Errorf("assign task %s: %w", taskID, apperr.ErrConflict)
	}
	t.TaskerID = &taskerID
	t.Status = marketplace.TaskAssigned
	t.UpdatedAt = at
	s.st.tasks[taskID] = t
	return nil
}

func (s *Store) CountCompletion(_ context.Context, taskerID string) error {
	defer s.lock()()
	if p, ok := s.st.profiles[taskerID]; ok {
		p.TotalTasksCompleted++
		s.st.profiles[taskerID] = p
	}
	return nil
}

func (s *Store) CreateApplication(_ context.Context, a marketplace.Application) error {
	defer s.lock()()
	if t, ok := s.st.tasks[a.TaskID]; !ok || t.Status != marketplace.TaskPosted {
		return fmt.Errorf("application for task %s: task is not posted: %w", a.TaskID, apperr.ErrConflict)
	}
	for _, other := range s.st.apps {
		if other.TaskID == a.TaskID && other.TaskerID == a.TaskerID {
			return fmt.Errorf("application for task %s by %s: %w", a.TaskID, a.TaskerID, apperr.ErrConflict)
		}
	}
	s.st.apps[a.ID] = a
	s.st.appOrder = append(s.st.appOrder, a.ID)
	return nil
}

func (s *Store) GetApplication(_ context.Context, id string) (marketplace.Application, error) {
	defer s.lock()()
	a, ok := s.st.apps[id]
	if !ok {
		return marketplace.Application{}, fmt.Errorf("application %s: %w", id, apperr.ErrNotFound)
	}
	return a, nil
}

// ListApplications returns newest first.
func (s *Store) ListApplications(_ context.Context, taskID string) ([]marketplace.Application, error) {
	defer s.lock()()
	out := []marketplace.Application{}
	for i := len(s.st.appOrder) - 1; i >= 0; i-- {
		if a := s.st.apps[s.st.appOrder[i]]; a.TaskID == taskID {
			out = append(out, a)
		}
	}
	slices.SortStableFunc(out, func(a, b marketplace.Application) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *Store) CountApplications(_ context.Context, taskIDs []string) (map[string]int, error) {
	defer s.lock()()
	out := make(map[string]int, len(taskIDs))
	for _, a := range s.st.apps {
		if slices.Contains(taskIDs, a.TaskID) {
			out[a.TaskID]++
		}
	}
	return out, nil
}

func (s *Store) UpdateApplication(_ context.Context, a marketplace.Application, expect marketplace.ApplicationStatus) error {
	defer s.lock()()
	cur, ok := s.st.apps[a.ID]
	if !ok {
		return fmt.Errorf("application %s: %w", a.ID, apperr.ErrNotFound)
	}
	if cur.Status != expect {
		return fmt.Errorf("application %s is %s, not %s: %w", a.ID, cur.Status, expect, apperr.ErrConflict)
	}
	a.TaskID = cur.TaskID
	a.TaskerID = cur.TaskerID
	a.CreatedAt = cur.CreatedAt
	s.st.apps[a.ID] = a
	return nil
}

func (s *Store) CreateMessage(_ context.Context, m marketplace.Message) error {
	defer s.lock()()
	s.st.messages = append(s.st.messages, m)
	return nil
}

func (s *Store) ListMessages(_ context.Context, taskID string) ([]marketplace.Message, error) {
	defer s.lock()()
	out := []marketplace.Message{}
	for _, m := range s.st.messages {
		if m.TaskID == taskID {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b marketplace.Message) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *Store) MarkRead(_ context.Context, taskID, receiverID string, ids []string, at time.Time) (int64, error) {
	defer s.lock()()
	var n int64
	for i, m := range s.st.messages {
		if m.TaskID == taskID && m.ReceiverID == receiverID && m.ReadAt == nil && slices.Contains(ids, m.ID) {
			readAt := at
			s.st.messages[i].ReadAt = &readAt
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateReview(_ context.Context, r marketplace.Review) error {
	defer s.lock()()
	for _, other := range s.st.reviews {
		if other.TaskID == r.TaskID {
			return fmt.Errorf("review for task %s: %w", r.TaskID, apperr.ErrConflict)
		}
	}
	s.st.reviews = append(s.st.reviews, r)

	if p, ok := s.st.profiles[r.RevieweeID]; ok {
		sum := marketplace.SummarizeRatings(r.RevieweeID, s.ratingsOf(r.RevieweeID))
		p.TotalReviews = sum.TotalReviews
		p.AverageRating = sum.AverageRating
		s.st.profiles[r.RevieweeID] = p
	}
	return nil
}

func (s *Store) ListReviews(_ context.Context, revieweeID string, limit, offset int) ([]marketplace.Review, error) {
	defer s.lock()()
	out := []marketplace.Review{}
	for i := len(s.st.reviews) - 1; i >= 0; i-- {
		if r := s.st.reviews[i]; r.RevieweeID == revieweeID {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b marketplace.Review) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if offset >= len(out) {
		return []marketplace.Review{}, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) RatingSummary(_ context.Context, revieweeID string) (marketplace.RatingSummary, error) {
	defer s.lock()()
	return marketplace.SummarizeRatings(revieweeID, s.ratingsOf(revieweeID)), nil
}

// ratingsOf counts reviews per star. Callers hold the lock.
func (s *Store) ratingsOf(revieweeID string) map[int]int {
	byStars := map[int]int{}
	for _, r := range s.st.reviews {
		if r.RevieweeID == revieweeID {
			byStars[r.Rating]++
		}
	}
	return byStars
}
