package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/exambook-store/api/internal/cart"
	"github.com/exambook-store/api/internal/platform/config"
	"github.com/exambook-store/api/internal/platform/observability"
	"github.com/exambook-store/api/internal/repositories"
	"github.com/exambook-store/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Catalog  services.CatalogService
	Cart     services.CartService
	Checkout services.CheckoutService
	Orders   services.OrderService
	Payments services.PaymentService
	Assets   services.AssetService
	Profiles services.ProfileService
	System   services.SystemService
	Notifier *services.NotificationService
}

// Repositories are the persistence adapters the services are built on.
type Repositories struct {
	Books      repositories.BookRepository
	TestSeries repositories.TestSeriesRepository
	Coupons    repositories.CouponRepository
	Users      repositories.UserRepository
	Orders     repositories.OrderRepository
	Health     repositories.HealthRepository
}

// Metrics counts order and payment outcomes.
type Metrics interface {
	services.OrderMetrics
	services.PaymentMetrics
}

// Infrastructure carries the non-repository adapters. Optional members left nil
// disable the dependent service instead of failing construction.
type Infrastructure struct {
	UserCarts    cart.Store
	SessionCarts cart.Store
	Publisher    services.NotificationPublisher
	Gateway      services.PaymentGateway
	Signer       services.UploadURLSigner
	Deleter      services.ObjectDeleter
	Metrics      Metrics
	// OptionalHealthChecks degrade rather than fail readiness when they error.
	OptionalHealthChecks []string
	Logger               *zap.Logger
	Clock                func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories Repositories
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides Firestore,
// Redis and GCP adapters while tests can supply in-memory ones.
func NewContainer(cfg config.Config, repos Repositories, infra Infrastructure, build services.BuildInfo) (*Container, error) {
	if repos.Books == nil || repos.TestSeries == nil || repos.Coupons == nil {
		return nil, errors.New("catalog repositories are required")
	}
	if infra.Clock == nil {
		infra.Clock = time.Now
	}

	svc, err := buildServices(cfg, repos, infra, build)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: repos,
		Services:     svc,
	}, nil
}

// Close waits for in-flight notifications to be handed off.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Services.Notifier == nil {
		return nil
	}
	return c.Services.Notifier.Close(ctx)
}

func buildServices(cfg config.Config, repos Repositories, infra Infrastructure, build services.BuildInfo) (Services, error) {
	var svc Services
	logger := observability.EventLogger(infra.Logger)

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Books:      repos.Books,
		TestSeries: repos.TestSeries,
		Coupons:    repos.Coupons,
		Clock:      infra.Clock,
		Logger:     logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Books:      repos.Books,
		TestSeries: repos.TestSeries,
		Coupons:    repos.Coupons,
		Clock:      infra.Clock,
		Logger:     logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	if infra.UserCarts != nil && infra.SessionCarts != nil {
		cartSvc, err := services.NewCartService(services.CartServiceDeps{
			UserStore:    infra.UserCarts,
			SessionStore: infra.SessionCarts,
			Books:        repos.Books,
			TestSeries:   repos.TestSeries,
			Clock:        infra.Clock,
			Logger:       logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build cart service: %w", err)
		}
		svc.Cart = cartSvc
	}

	notifier, err := services.NewNotificationService(services.NotificationServiceDeps{
		Publisher:  infra.Publisher,
		AdminEmail: cfg.Notifications.AdminEmail,
		Enabled:    cfg.Notifications.Enabled && infra.Publisher != nil,
		Clock:      infra.Clock,
		Logger:     logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build notification service: %w", err)
	}
	svc.Notifier = notifier

	if repos.Orders != nil {
		deps := services.OrderServiceDeps{
			Orders:     repos.Orders,
			Books:      repos.Books,
			TestSeries: repos.TestSeries,
			Coupons:    repos.Coupons,
			Notifier:   notifier,
			Clock:      infra.Clock,
			Logger:     logger,
		}
		if svc.Cart != nil {
			deps.Carts = svc.Cart
		}
		if infra.Metrics != nil {
			deps.Metrics = infra.Metrics
		}
		orderSvc, err := services.NewOrderService(deps)
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc
	}

	if repos.Orders != nil && infra.Gateway != nil {
		deps := services.PaymentServiceDeps{
			Orders:   repos.Orders,
			Gateway:  infra.Gateway,
			Notifier: notifier,
			URLs: services.PaymentURLs{
				CallbackURL: cfg.PhonePe.CallbackURL,
				RedirectURL: cfg.PhonePe.RedirectURL,
				SuccessURL:  cfg.PhonePe.SuccessURL,
				FailureURL:  cfg.PhonePe.FailureURL,
			},
			Clock:  infra.Clock,
			Logger: logger,
		}
		if infra.Metrics != nil {
			deps.Metrics = infra.Metrics
		}
		paymentSvc, err := services.NewPaymentService(deps)
		if err != nil {
			return Services{}, fmt.Errorf("build payment service: %w", err)
		}
		svc.Payments = paymentSvc
	}

	if infra.Signer != nil && strings.TrimSpace(cfg.Storage.UploadsBucket) != "" {
		assetSvc, err := services.NewAssetService(services.AssetServiceDeps{
			Signer:        infra.Signer,
			Deleter:       infra.Deleter,
			Bucket:        cfg.Storage.UploadsBucket,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
			URLTTL:        cfg.Storage.UploadURLTTL,
			MaxBytes:      cfg.Storage.MaxUploadBytes,
			Logger:        logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build asset service: %w", err)
		}
		svc.Assets = assetSvc
	}

	if repos.Users != nil {
		profileSvc, err := services.NewProfileService(services.ProfileServiceDeps{
			Users:  repos.Users,
			Logger: logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build profile service: %w", err)
		}
		svc.Profiles = profileSvc
	}

	if repos.Health != nil {
		if build.Environment == "" {
			build.Environment = cfg.Environment
		}
		if build.StartedAt.IsZero() {
			build.StartedAt = infra.Clock().UTC()
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: repos.Health,
			OptionalChecks:   infra.OptionalHealthChecks,
			Clock:            infra.Clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
