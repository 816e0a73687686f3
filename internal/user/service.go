package user

import (
	"context"
	"errors"
	"time"

	"github.com/sudo-init-do/skillhub/internal/apperr"
)

// ProfileStore is the persistence accessor for profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (Profile, error)
	UpdateProfile(ctx context.Context, id string, req UpdateProfileRequest, at time.Time) (Profile, error)
}

type Service struct {
	store ProfileStore
	now   func() time.Time
}

func NewService(store ProfileStore) *Service {
	return &Service{store: store, now: time.Now}
}

// WithClock overrides the time source; tests use it to pin updated_at.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GetProfile returns the public view of any user's profile.
func (s *Service) GetProfile(ctx context.Context, id string) (PublicView, error) {
	p, err := s.get(ctx, id)
	if err != nil {
		return PublicView{}, err
	}
	return p.Public(), nil
}

func (s *Service) GetOwnProfile(ctx context.Context, callerID string) (Profile, error) {
	return s.get(ctx, callerID)
}

// UpdateOwnProfile patches the caller's own row and always stamps updated_at.
func (s *Service) UpdateOwnProfile(ctx context.Context, callerID string, req UpdateProfileRequest) (Profile, error) {
	p, err := s.store.UpdateProfile(ctx, callerID, req, s.now().UTC())
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return Profile{}, apperr.NotFound("profile not found")
	case errors.Is(err, apperr.ErrConflict):
		return Profile{}, apperr.InvalidState("username is already taken")
	case err != nil:
		return Profile{}, err
	}
	return p, nil
}

func (s *Service) get(ctx context.Context, id string) (Profile, error) {
	p, err := s.store.GetProfile(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return Profile{}, apperr.NotFound("profile not found")
	}
	return p, err
}
