package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/exambook-store/api/internal/cart"
	"github.com/exambook-store/api/internal/di"
	"github.com/exambook-store/api/internal/handlers"
	"github.com/exambook-store/api/internal/payments"
	"github.com/exambook-store/api/internal/platform/auth"
	"github.com/exambook-store/api/internal/platform/config"
	pfirestore "github.com/exambook-store/api/internal/platform/firestore"
	"github.com/exambook-store/api/internal/platform/idempotency"
	"github.com/exambook-store/api/internal/platform/jobs"
	"github.com/exambook-store/api/internal/platform/observability"
	"github.com/exambook-store/api/internal/platform/secrets"
	platformstorage "github.com/exambook-store/api/internal/platform/storage"
	"github.com/exambook-store/api/internal/repositories"
	firestoreRepo "github.com/exambook-store/api/internal/repositories/firestore"
	"github.com/exambook-store/api/internal/services"
)

const (
	couponValidationsPerHour = 30
	idempotencySweepInterval = time.Hour
	shutdownTimeout          = 10 * time.Second

	healthCheckFirestore = "firestore"
	healthCheckRedis     = "redis"
	healthCheckStorage   = "storage"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["STORE_LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Error(err))
		}
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore, pfirestore.WithTransactionTimeout(cfg.Checkout.TransactionTimeout))
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		if err := firestoreProvider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	repos, err := newRepositories(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	userCarts, err := cart.NewFirestoreStore(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise cart store", zap.Error(err))
	}
	var sessionCarts cart.Store = cart.NewMemoryStore()
	var redisClient *redis.Client
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		store, err := cart.NewRedisStore(redisClient, cart.WithTTL(cfg.Redis.CartTTL))
		if err != nil {
			logger.Fatal("failed to initialise redis cart store", zap.Error(err))
		}
		sessionCarts = store
	} else {
		logger.Warn("redis address not configured; guest carts are kept in memory")
	}

	infra := di.Infrastructure{
		UserCarts:    userCarts,
		SessionCarts: sessionCarts,
		Metrics:      observability.NewStoreMetrics(),
		// Guest carts and cover uploads can be down without stopping checkout.
		OptionalHealthChecks: []string{healthCheckRedis, healthCheckStorage},
		Logger:               logger.Named("services"),
		Clock:                time.Now,
	}

	if cfg.Notifications.Enabled {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Notifications.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		emailTopic := pubsubClient.Topic(cfg.Notifications.EmailTopic)
		whatsappTopic := pubsubClient.Topic(cfg.Notifications.WhatsAppTopic)
		defer func() {
			emailTopic.Stop()
			whatsappTopic.Stop()
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		publisher, err := jobs.NewPubSubNotificationPublisher(emailTopic, whatsappTopic)
		if err != nil {
			logger.Fatal("failed to initialise notification publisher", zap.Error(err))
		}
		infra.Publisher = publisher
	}

	var storageClient *cloudstorage.Client
	if bucket := strings.TrimSpace(cfg.Storage.UploadsBucket); bucket != "" {
		storageClient, err = cloudstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		remover, err := platformstorage.NewObjectRemover(storageClient)
		if err != nil {
			logger.Fatal("failed to initialise object remover", zap.Error(err))
		}
		infra.Deleter = remover

		if signerKey := strings.TrimSpace(cfg.Storage.SignerKey); signerKey != "" {
			signer, err := platformstorage.NewServiceAccountSignerFromJSON([]byte(signerKey))
			if err != nil {
				logger.Fatal("failed to parse storage signer key", zap.Error(err))
			}
			signedURLClient, err := platformstorage.NewClient(signer)
			if err != nil {
				logger.Fatal("failed to initialise signed url client", zap.Error(err))
			}
			infra.Signer = signedURLClient
		} else {
			logger.Warn("storage signer key not configured; cover uploads disabled")
		}
	}

	gateway, err := newPaymentGateway(cfg)
	if err != nil {
		logger.Fatal("failed to initialise payment gateway", zap.Error(err))
	}
	infra.Gateway = gateway

	repos.Health, err = newHealthRepository(firestoreProvider, redisClient, storageClient, cfg.Storage.UploadsBucket)
	if err != nil {
		logger.Warn("health: dependency checks unavailable", zap.Error(err))
	}

	container, err := di.NewContainer(cfg, repos, infra, buildInfoFromEnv(envValues, cfg, startedAt))
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	svc := container.Services

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	idempotencyStore, err := idempotency.NewFirestoreStore(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	var janitorWG sync.WaitGroup
	janitorWG.Add(1)
	go func() {
		defer janitorWG.Done()
		idempotency.RunJanitor(janitorCtx, idempotencyStore, idempotencySweepInterval, logger.Named("idempotency"))
	}()

	catalogHandlers := handlers.NewCatalogHandlers(svc.Catalog)
	cartHandlers := handlers.NewCartHandlers(authenticator, svc.Cart)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, svc.Checkout, svc.Cart,
		handlers.WithCouponRateLimit(couponValidationsPerHour, time.Hour, time.Now),
	)
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders, svc.Cart,
		handlers.WithIdempotency(idempotencyMiddleware),
	)
	meHandlers := handlers.NewMeHandlers(authenticator, svc.Profiles)
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, svc.Payments)
	adminHandlers := handlers.NewAdminHandlers(authenticator, svc.Orders, svc.Catalog,
		handlers.WithAdminAssets(svc.Assets),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(svc.System)),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithMeRoutes(meHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithWebhookRoutes(paymentHandlers.WebhookRoutes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	}
	if len(cfg.CORS.AllowedOrigins) > 0 {
		opts = append(opts, handlers.WithAllowedOrigins(cfg.CORS.AllowedOrigins...))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr), zap.String("environment", cfg.Environment))
	go func() {
		serverLogger.Info("exambook store api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	stopJanitor()
	janitorWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("pending notifications dropped", zap.Error(err))
	}
}

func newRepositories(provider *pfirestore.Provider) (di.Repositories, error) {
	books, err := firestoreRepo.NewBookRepository(provider)
	if err != nil {
		return di.Repositories{}, fmt.Errorf("book repository: %w", err)
	}
	series, err := firestoreRepo.NewTestSeriesRepository(provider)
	if err != nil {
		return di.Repositories{}, fmt.Errorf("test series repository: %w", err)
	}
	coupons, err := firestoreRepo.NewCouponRepository(provider)
	if err != nil {
		return di.Repositories{}, fmt.Errorf("coupon repository: %w", err)
	}
	users, err := firestoreRepo.NewUserRepository(provider)
	if err != nil {
		return di.Repositories{}, fmt.Errorf("user repository: %w", err)
	}
	orders, err := firestoreRepo.NewOrderRepository(provider)
	if err != nil {
		return di.Repositories{}, fmt.Errorf("order repository: %w", err)
	}
	return di.Repositories{
		Books:      books,
		TestSeries: series,
		Coupons:    coupons,
		Users:      users,
		Orders:     orders,
	}, nil
}

func newPaymentGateway(cfg config.Config) (*payments.Manager, error) {
	phonepe, err := payments.NewPhonePeProvider(payments.PhonePeConfig{
		MerchantID: cfg.PhonePe.MerchantID,
		SaltKey:    cfg.PhonePe.SaltKey,
		SaltIndex:  cfg.PhonePe.SaltIndex,
		BaseURL:    cfg.PhonePe.BaseURL,
		HTTPClient: &http.Client{Timeout: cfg.PhonePe.HTTPTimeout},
	})
	if err != nil {
		return nil, err
	}
	return payments.NewManager(
		map[string]payments.Provider{payments.ProviderPhonePe: phonepe},
		payments.WithDefaultProvider(payments.ProviderPhonePe),
	)
}

func newHealthRepository(provider *pfirestore.Provider, redisClient *redis.Client, storageClient *cloudstorage.Client, bucket string) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 3)
	if provider != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    healthCheckFirestore,
			Timeout: 1500 * time.Millisecond,
			Check:   provider.Ping,
		})
	}
	if redisClient != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    healthCheckRedis,
			Timeout: 500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}
	if storageClient != nil && strings.TrimSpace(bucket) != "" {
		checks = append(checks, repositories.DependencyCheck{
			Name:    healthCheckStorage,
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := storageClient.Bucket(bucket).Attrs(ctx)
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["STORE_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	project := lookup("STORE_SECRET_PROJECT_ID")
	if project == "" {
		project = lookup("STORE_FIREBASE_PROJECT_ID")
	}
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if path := lookup("STORE_SECRET_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	if credentialsFile := lookup("STORE_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists secrets that must resolve before serving. The
// signer key and Redis password are only needed when their feature is configured.
func requiredSecretNames(env map[string]string) []string {
	required := []string{"PhonePe.SaltKey"}
	if strings.TrimSpace(env["STORE_STORAGE_UPLOADS_BUCKET"]) != "" && strings.TrimSpace(env["STORE_STORAGE_SIGNER_KEY"]) != "" {
		required = append(required, "Storage.SignerKey")
	}
	if strings.TrimSpace(env["STORE_REDIS_PASSWORD"]) != "" {
		required = append(required, "Redis.Password")
	}
	return required
}
