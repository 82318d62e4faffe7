package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/exambook-store/api/internal/domain"
	"github.com/exambook-store/api/internal/repositories"
)

var (
	// ErrUserInvalidInput indicates a profile request without a user.
	ErrUserInvalidInput = errors.New("user: invalid input")
)

// UserProfile is the stored account document.
type UserProfile = domain.UserProfile

// ProfileService reads the caller's stored profile so checkout can prefill it.
type ProfileService interface {
	GetProfile(ctx context.Context, cmd GetProfileCommand) (UserProfile, error)
}

// GetProfileCommand identifies the caller. The identity fields seed the
// profile of a user who has not checked out yet.
type GetProfileCommand struct {
	UserID string
	Name   string
	Email  string
	Phone  string
}

// ProfileServiceDeps bundles collaborators required to construct the profile service.
type ProfileServiceDeps struct {
	Users  repositories.UserRepository
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type profileService struct {
	users  repositories.UserRepository
	logger serviceLogger
}

// NewProfileService constructs a ProfileService.
func NewProfileService(deps ProfileServiceDeps) (ProfileService, error) {
	if deps.Users == nil {
		return nil, errors.New("profile service: user repository is required")
	}
	return &profileService{users: deps.Users, logger: ensureLogger(deps.Logger)}, nil
}

func (s *profileService) GetProfile(ctx context.Context, cmd GetProfileCommand) (UserProfile, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return UserProfile{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	profile, err := s.users.Get(ctx, uid)
	switch {
	case err == nil:
	case isRepositoryNotFound(err):
		s.logger(ctx, "profile.missing", map[string]any{"uid": uid})
		profile = UserProfile{UID: uid, Role: domain.UserRoleCustomer}
	default:
		return UserProfile{}, mapRepositoryError(err, "profile", nil, nil)
	}
	profile.Name = chooseFirstNonEmpty(profile.Name, cmd.Name)
	profile.Email = chooseFirstNonEmpty(profile.Email, cmd.Email)
	profile.Phone = chooseFirstNonEmpty(profile.Phone, cmd.Phone)
	return profile, nil
}
