package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/exambook-store/api/internal/platform/auth"
	"github.com/exambook-store/api/internal/platform/httpx"
	"github.com/exambook-store/api/internal/platform/requestctx"
	"github.com/exambook-store/api/internal/repositories"
	"github.com/exambook-store/api/internal/services"
)

const (
	// CartSessionHeader carries the anonymous cart session minted by the storefront.
	CartSessionHeader = "X-Cart-Session"

	defaultPageSize  = 20
	maxPageSize      = 100
	maxSessionLength = 128
)

// CartSessionMiddleware copies the X-Cart-Session header onto the request context.
func CartSessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := strings.TrimSpace(r.Header.Get(CartSessionHeader))
		if session != "" && len(session) <= maxSessionLength {
			r = r.WithContext(requestctx.WithCartSession(r.Context(), session))
		}
		next.ServeHTTP(w, r)
	})
}

func identityFrom(ctx context.Context) *auth.Identity {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		return nil
	}
	return identity
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity := identityFrom(ctx)
	if identity == nil {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

// viewerFrom describes the caller for order visibility checks. Guests prove
// ownership with the email used at checkout.
func viewerFrom(ctx context.Context, guestEmail string) services.OrderViewer {
	identity := identityFrom(ctx)
	if identity == nil {
		return services.OrderViewer{Email: strings.TrimSpace(guestEmail)}
	}
	return services.OrderViewer{
		UserID:  identity.UID,
		Email:   chooseNonEmpty(guestEmail, identity.Email),
		IsAdmin: identity.IsAdmin(),
	}
}

func cartKeyFrom(ctx context.Context) (services.CartKey, bool) {
	key := services.CartKey{SessionID: requestctx.CartSession(ctx)}
	if identity := identityFrom(ctx); identity != nil {
		key.UserID = identity.UID
	}
	return key, key.UserID != "" || key.SessionID != ""
}

func parsePagination(r *http.Request) (services.Pagination, error) {
	query := r.URL.Query()
	page := services.Pagination{
		PageSize:  defaultPageSize,
		PageToken: strings.TrimSpace(query.Get("page_token")),
	}
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return services.Pagination{}, errors.New("page_size must be an integer")
		}
		switch {
		case size <= 0:
		case size > maxPageSize:
			page.PageSize = maxPageSize
		default:
			page.PageSize = size
		}
	}
	return page, nil
}

func parseFilterValues(values []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}

// decodeBody decodes a JSON body, writing the error envelope on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	if err := httpx.DecodeJSON(r, limit, dst); err != nil {
		httpx.WriteError(r.Context(), w, httpx.BadBody(err))
		return false
	}
	return true
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

func serviceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", name+" service is unavailable", http.StatusServiceUnavailable))
}

// errorMessage drops the sentinel prefix so clients see the specific reason.
func errorMessage(err, sentinel error) string {
	msg := err.Error()
	if sentinel != nil {
		msg = strings.TrimPrefix(msg, sentinel.Error()+": ")
	}
	return msg
}

// writeBackendError renders failures no domain mapping claimed.
func writeBackendError(ctx context.Context, w http.ResponseWriter, code string, err error) {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		httpx.WriteError(ctx, w, httpx.NewError("backend_unavailable", "service temporarily unavailable, please retry", http.StatusServiceUnavailable))
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out, please retry", http.StatusServiceUnavailable))
		return
	}
	requestctx.Logger(ctx).Sugar().Errorw("handler.error", "code", code, "error", err)
	httpx.WriteError(ctx, w, httpx.NewError(code, "failed to process request", http.StatusInternalServerError))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func chooseNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
