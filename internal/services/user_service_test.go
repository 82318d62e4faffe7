package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/exambook-store/api/internal/domain"
)

type stubUserRepo struct {
	profiles map[string]domain.UserProfile
	err      error
}

func (s *stubUserRepo) Get(_ context.Context, uid string) (domain.UserProfile, error) {
	if s.err != nil {
		return domain.UserProfile{}, s.err
	}
	profile, ok := s.profiles[uid]
	if !ok {
		return domain.UserProfile{}, notFoundErr()
	}
	return profile, nil
}

func TestProfileServiceReturnsStoredProfile(t *testing.T) {
	addr := &domain.Address{Name: "Asha", City: "Pune", State: "Maharashtra", Pincode: "411001"}
	svc, err := NewProfileService(ProfileServiceDeps{Users: &stubUserRepo{profiles: map[string]domain.UserProfile{
		"user-1": {UID: "user-1", Name: "Asha", Phone: "9876543210", Role: domain.UserRoleCustomer, DefaultAddress: addr},
	}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	profile, err := svc.GetProfile(context.Background(), GetProfileCommand{UserID: "user-1", Email: "asha@example.com", Name: "Token Name"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.Name != "Asha" {
		t.Fatalf("stored name should win, got %q", profile.Name)
	}
	if profile.Email != "asha@example.com" {
		t.Fatalf("missing email should come from identity, got %q", profile.Email)
	}
	if profile.DefaultAddress == nil || profile.DefaultAddress.Pincode != "411001" {
		t.Fatalf("expected default address, got %+v", profile.DefaultAddress)
	}
}

func TestProfileServiceMissingProfileFallsBackToIdentity(t *testing.T) {
	svc, _ := NewProfileService(ProfileServiceDeps{Users: &stubUserRepo{}})

	profile, err := svc.GetProfile(context.Background(), GetProfileCommand{UserID: "new-user", Name: "Ravi", Email: "ravi@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.UID != "new-user" || profile.Role != domain.UserRoleCustomer || profile.Name != "Ravi" || profile.DefaultAddress != nil {
		t.Fatalf("unexpected profile %+v", profile)
	}
}

func TestProfileServiceErrors(t *testing.T) {
	svc, _ := NewProfileService(ProfileServiceDeps{Users: &stubUserRepo{}})
	if _, err := svc.GetProfile(context.Background(), GetProfileCommand{}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	unavailable := &stubRepoError{err: errors.New("deadline"), unavailable: true}
	svc, _ = NewProfileService(ProfileServiceDeps{Users: &stubUserRepo{err: unavailable}})
	_, err := svc.GetProfile(context.Background(), GetProfileCommand{UserID: "user-1"})
	if !errors.Is(err, unavailable) {
		t.Fatalf("expected wrapped repository error, got %v", err)
	}

	if _, err := NewProfileService(ProfileServiceDeps{}); err == nil {
		t.Fatalf("expected constructor error without repository")
	}
}
