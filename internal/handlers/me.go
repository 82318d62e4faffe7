package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/exambook-store/api/internal/platform/auth"
	"github.com/exambook-store/api/internal/platform/httpx"
	"github.com/exambook-store/api/internal/services"
)

// MeHandlers serves the signed-in user's own profile.
type MeHandlers struct {
	authn    *auth.Authenticator
	profiles services.ProfileService
}

// NewMeHandlers constructs profile handlers.
func NewMeHandlers(authn *auth.Authenticator, profiles services.ProfileService) *MeHandlers {
	return &MeHandlers{authn: authn, profiles: profiles}
}

// Routes registers /me/profile.
func (h *MeHandlers) Routes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/me/profile", h.getProfile)
}

type profilePayload struct {
	UID            string          `json:"uid"`
	Name           string          `json:"name,omitempty"`
	Email          string          `json:"email,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	Role           string          `json:"role"`
	DefaultAddress *addressPayload `json:"default_address,omitempty"`
	UpdatedAt      string          `json:"updated_at,omitempty"`
}

func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.profiles == nil {
		serviceUnavailable(ctx, w, "profile")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	profile, err := h.profiles.GetProfile(ctx, services.GetProfileCommand{
		UserID: identity.UID,
		Name:   identity.Name,
		Email:  identity.Email,
		Phone:  identity.Phone,
	})
	if err != nil {
		writeProfileError(ctx, w, err)
		return
	}
	payload := profilePayload{
		UID:       profile.UID,
		Name:      profile.Name,
		Email:     profile.Email,
		Phone:     profile.Phone,
		Role:      string(profile.Role),
		UpdatedAt: formatTime(profile.UpdatedAt),
	}
	if profile.DefaultAddress != nil {
		addr := buildAddressPayload(*profile.DefaultAddress)
		payload.DefaultAddress = &addr
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func writeProfileError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrUserInvalidInput) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errorMessage(err, services.ErrUserInvalidInput), http.StatusBadRequest))
		return
	}
	writeBackendError(ctx, w, "profile_error", err)
}
