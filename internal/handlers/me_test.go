package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/exambook-store/api/internal/domain"
	"github.com/exambook-store/api/internal/platform/auth"
	"github.com/exambook-store/api/internal/services"
)

func newMeRouter(svc services.ProfileService) chi.Router {
	r := chi.NewRouter()
	r.Group(NewMeHandlers(nil, svc).Routes)
	return r
}

func TestMeHandlersGetProfile(t *testing.T) {
	svc := &stubProfileService{profile: services.UserProfile{
		UID:   "user-1",
		Name:  "Asha",
		Email: "asha@example.com",
		Role:  domain.UserRoleCustomer,
		DefaultAddress: &domain.Address{
			Name: "Asha", Phone: "9876543210", Line1: "12 MG Road", City: "Pune", State: "Maharashtra", Pincode: "411001",
		},
	}}
	req := httptest.NewRequest(http.MethodGet, "/me/profile", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1", Email: "asha@example.com", Name: "Asha"}))
	rr := httptest.NewRecorder()
	newMeRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if svc.cmd.UserID != "user-1" || svc.cmd.Email != "asha@example.com" {
		t.Fatalf("unexpected command %+v", svc.cmd)
	}
	var body profilePayload
	decodeJSONBody(t, rr, &body)
	if body.Role != "customer" || body.DefaultAddress == nil || body.DefaultAddress.Pincode != "411001" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestMeHandlersRequiresIdentity(t *testing.T) {
	svc := &stubProfileService{}
	rr := httptest.NewRecorder()
	newMeRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/me/profile", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if svc.cmd.UserID != "" {
		t.Fatalf("service must not be called")
	}
}

func TestMeHandlersBackendError(t *testing.T) {
	svc := &stubProfileService{err: errors.New("firestore down")}
	req := httptest.NewRequest(http.MethodGet, "/me/profile", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
	rr := httptest.NewRecorder()
	newMeRouter(svc).ServeHTTP(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if code := decodeErrorCode(t, rr); code != "profile_error" {
		t.Fatalf("expected profile_error, got %s", code)
	}
}
