package di

import (
	"context"
	"testing"
	"time"

	"github.com/exambook-store/api/internal/cart"
	"github.com/exambook-store/api/internal/platform/config"
	"github.com/exambook-store/api/internal/repositories"
	"github.com/exambook-store/api/internal/services"
)

// Construction never calls through to these, so the embedded nil interfaces are never hit.
type (
	nopBooks     struct{ repositories.BookRepository }
	nopSeries    struct{ repositories.TestSeriesRepository }
	nopCoupons   struct{ repositories.CouponRepository }
	nopUsers     struct{ repositories.UserRepository }
	nopOrders    struct{ repositories.OrderRepository }
	nopHealth    struct{ repositories.HealthRepository }
	nopGateway   struct{ services.PaymentGateway }
	nopSigner    struct{ services.UploadURLSigner }
	nopPublisher struct{ services.NotificationPublisher }
)

func catalogRepos() Repositories {
	return Repositories{Books: nopBooks{}, TestSeries: nopSeries{}, Coupons: nopCoupons{}}
}

func TestNewContainerRequiresCatalog(t *testing.T) {
	if _, err := NewContainer(config.Config{}, Repositories{Books: nopBooks{}}, Infrastructure{}, services.BuildInfo{}); err == nil {
		t.Fatalf("expected error without catalog repositories")
	}
}

func TestNewContainerMinimal(t *testing.T) {
	c, err := NewContainer(config.Config{}, catalogRepos(), Infrastructure{}, services.BuildInfo{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Services.Catalog == nil || c.Services.Checkout == nil || c.Services.Notifier == nil {
		t.Fatalf("expected catalog, checkout and notifier to be built: %+v", c.Services)
	}
	if c.Services.Cart != nil || c.Services.Orders != nil || c.Services.Payments != nil {
		t.Fatalf("expected optional services to be absent: %+v", c.Services)
	}
	if c.Services.Assets != nil || c.Services.Profiles != nil || c.Services.System != nil {
		t.Fatalf("expected optional services to be absent: %+v", c.Services)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewContainerFull(t *testing.T) {
	cfg := config.Config{
		Environment: "staging",
		Storage:     config.StorageConfig{UploadsBucket: "exambook-covers"},
		Notifications: config.NotificationConfig{
			Enabled:    true,
			AdminEmail: "orders@example.com",
		},
	}
	repos := catalogRepos()
	repos.Users = nopUsers{}
	repos.Orders = nopOrders{}
	repos.Health = nopHealth{}
	infra := Infrastructure{
		UserCarts:    cart.NewMemoryStore(),
		SessionCarts: cart.NewMemoryStore(),
		Publisher:    nopPublisher{},
		Gateway:      nopGateway{},
		Signer:       nopSigner{},
		Clock:        func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) },
	}

	c, err := NewContainer(cfg, repos, infra, services.BuildInfo{Version: "1.4.0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := c.Services
	if s.Cart == nil || s.Orders == nil || s.Payments == nil || s.Assets == nil || s.Profiles == nil || s.System == nil {
		t.Fatalf("expected every service to be built: %+v", s)
	}
}

func TestNewContainerEnabledNotificationsWithoutPublisher(t *testing.T) {
	cfg := config.Config{Notifications: config.NotificationConfig{Enabled: true}}
	c, err := NewContainer(cfg, catalogRepos(), Infrastructure{}, services.BuildInfo{})
	if err != nil {
		t.Fatalf("expected notifier to fall back to disabled, got %v", err)
	}
	if c.Services.Notifier == nil {
		t.Fatalf("expected notifier")
	}
}

func TestContainerCloseNil(t *testing.T) {
	var c *Container
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("nil container close: %v", err)
	}
}
