package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

const (
	defaultEnvFile            = ".env"
	defaultPort               = "8080"
	defaultReadTimeout        = 15 * time.Second
	defaultWriteTimeout       = 30 * time.Second
	defaultIdleTimeout        = 120 * time.Second
	defaultEnvironment        = "local"
	defaultPhonePeBaseURL     = "https://api-preprod.phonepe.com/apis/pg-sandbox"
	defaultPhonePeSaltIndex   = "1"
	defaultPhonePeHTTPTimeout = 10 * time.Second
	defaultUploadURLTTL       = 15 * time.Minute
	defaultUploadMaxBytes     = 5 << 20
	defaultCartTTL            = 30 * 24 * time.Hour
	defaultTxTimeout          = 15 * time.Second
	defaultIdempotencyHeader  = "Idempotency-Key"
	defaultIdempotencyTTL     = 24 * time.Hour
	defaultEmailTopic         = "store-email-notifications"
	defaultWhatsAppTopic      = "store-whatsapp-notifications"
)

// Config is the full runtime configuration, grouped by concern.
type Config struct {
	Environment   string
	LogLevel      string
	Server        ServerConfig
	Firebase      FirebaseConfig
	Firestore     FirestoreConfig
	Storage       StorageConfig
	PhonePe       PhonePeConfig
	Notifications NotificationConfig
	Redis         RedisConfig
	CORS          CORSConfig
	Checkout      CheckoutConfig
	Idempotency   IdempotencyConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig identifies the Firebase project used for customer auth.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig identifies the document database.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig controls cover image uploads.
type StorageConfig struct {
	UploadsBucket  string
	PublicBaseURL  string
	UploadURLTTL   time.Duration
	MaxUploadBytes int64
	SignerKey      string
}

// PhonePeConfig holds the merchant credentials and redirect targets for PhonePe.
type PhonePeConfig struct {
	MerchantID  string
	SaltKey     string
	SaltIndex   string
	BaseURL     string
	CallbackURL string
	RedirectURL string
	SuccessURL  string
	FailureURL  string
	HTTPTimeout time.Duration
}

// NotificationConfig names the Pub/Sub topics drained by the email and WhatsApp senders.
type NotificationConfig struct {
	ProjectID     string
	EmailTopic    string
	WhatsAppTopic string
	AdminEmail    string
	Enabled       bool
}

// RedisConfig points at the guest cart session store. An empty Addr keeps carts in Firestore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CartTTL  time.Duration
}

// CORSConfig lists the storefront origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string
}

// CheckoutConfig tunes the order transaction.
type CheckoutConfig struct {
	TransactionTimeout time.Duration
}

// IdempotencyConfig controls replay protection on order creation.
type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
}

// SecretResolver resolves secret:// references.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret calls f.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError lists required fields that were missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending field names.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError wraps a failed secret lookup.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError reports required secrets that resolved to empty values.
// Names are redacted in Error so the message is safe to log.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	redacted := make([]string, 0, len(e.names))
	for _, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		redacted = append(redacted, hex.EncodeToString(sum[:8]))
	}
	sort.Strings(redacted)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(redacted, ", "))
}

// Names returns the unredacted field names.
func (e *MissingSecretsError) Names() []string {
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errNoResolver = errors.New("secret resolver not configured")

// Option customises Load.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the dotenv path.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap supplies values that take precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver used for secret:// and sm:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets marks secret fields (e.g. "PhonePe.SaltKey") that must resolve to a value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

// Load builds the configuration from defaults, the dotenv file, the process
// environment and explicit overrides, in increasing precedence.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	env, err := environment(options)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "STORE_ENVIRONMENT", defaultEnvironment)),
		LogLevel:    stringWithDefault(lookup, "STORE_LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "STORE_SERVER_PORT", stringWithDefault(lookup, "PORT", defaultPort)),
			ReadTimeout:  durationWithDefault(lookup, "STORE_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "STORE_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "STORE_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "STORE_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "STORE_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "STORE_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "STORE_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			UploadsBucket:  stringWithDefault(lookup, "STORE_STORAGE_UPLOADS_BUCKET", ""),
			PublicBaseURL:  stringWithDefault(lookup, "STORE_STORAGE_PUBLIC_BASE_URL", ""),
			UploadURLTTL:   durationWithDefault(lookup, "STORE_STORAGE_UPLOAD_URL_TTL", defaultUploadURLTTL),
			MaxUploadBytes: int64(intWithDefault(lookup, "STORE_STORAGE_MAX_UPLOAD_BYTES", defaultUploadMaxBytes)),
			SignerKey:      stringWithDefault(lookup, "STORE_STORAGE_SIGNER_KEY", ""),
		},
		PhonePe: PhonePeConfig{
			MerchantID:  stringWithDefault(lookup, "STORE_PHONEPE_MERCHANT_ID", ""),
			SaltKey:     stringWithDefault(lookup, "STORE_PHONEPE_SALT_KEY", ""),
			SaltIndex:   stringWithDefault(lookup, "STORE_PHONEPE_SALT_INDEX", defaultPhonePeSaltIndex),
			BaseURL:     strings.TrimRight(stringWithDefault(lookup, "STORE_PHONEPE_BASE_URL", defaultPhonePeBaseURL), "/"),
			CallbackURL: stringWithDefault(lookup, "STORE_PHONEPE_CALLBACK_URL", ""),
			RedirectURL: stringWithDefault(lookup, "STORE_PHONEPE_REDIRECT_URL", ""),
			SuccessURL:  stringWithDefault(lookup, "STORE_PHONEPE_SUCCESS_URL", ""),
			FailureURL:  stringWithDefault(lookup, "STORE_PHONEPE_FAILURE_URL", ""),
			HTTPTimeout: durationWithDefault(lookup, "STORE_PHONEPE_HTTP_TIMEOUT", defaultPhonePeHTTPTimeout),
		},
		Notifications: NotificationConfig{
			ProjectID:     stringWithDefault(lookup, "STORE_NOTIFICATIONS_PROJECT_ID", ""),
			EmailTopic:    stringWithDefault(lookup, "STORE_NOTIFICATIONS_EMAIL_TOPIC", defaultEmailTopic),
			WhatsAppTopic: stringWithDefault(lookup, "STORE_NOTIFICATIONS_WHATSAPP_TOPIC", defaultWhatsAppTopic),
			AdminEmail:    stringWithDefault(lookup, "STORE_NOTIFICATIONS_ADMIN_EMAIL", ""),
			Enabled:       boolWithDefault(lookup, "STORE_NOTIFICATIONS_ENABLED", true),
		},
		Redis: RedisConfig{
			Addr:     stringWithDefault(lookup, "STORE_REDIS_ADDR", ""),
			Password: stringWithDefault(lookup, "STORE_REDIS_PASSWORD", ""),
			DB:       intWithDefault(lookup, "STORE_REDIS_DB", 0),
			CartTTL:  durationWithDefault(lookup, "STORE_REDIS_CART_TTL", defaultCartTTL),
		},
		CORS: CORSConfig{
			AllowedOrigins: csvWithDefault(lookup, "STORE_CORS_ALLOWED_ORIGINS"),
		},
		Checkout: CheckoutConfig{
			TransactionTimeout: durationWithDefault(lookup, "STORE_CHECKOUT_TX_TIMEOUT", defaultTxTimeout),
		},
		Idempotency: IdempotencyConfig{
			Header: stringWithDefault(lookup, "STORE_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:    durationWithDefault(lookup, "STORE_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Notifications.ProjectID == "" {
		cfg.Notifications.ProjectID = cfg.Firestore.ProjectID
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"PhonePe.SaltKey", &cfg.PhonePe.SaltKey},
		{"Redis.Password", &cfg.Redis.Password},
		{"Storage.SignerKey", &cfg.Storage.SignerKey},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	if missing := missingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

// EnvironmentValues returns the merged environment Load would see. main uses it
// to build the secret fetcher before Load runs.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}
	return environment(options)
}

func environment(options loaderOptions) (map[string]string, error) {
	values, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "secret://") && !strings.HasPrefix(trimmed, "sm://") {
		return value, nil
	}
	ref := "secret://" + strings.TrimPrefix(strings.TrimPrefix(trimmed, "secret://"), "sm://")
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errNoResolver}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validate(cfg Config) error {
	var missing []string
	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		missing = append(missing, "Firebase.ProjectID")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if cfg.PhonePe.MerchantID == "" {
		missing = append(missing, "PhonePe.MerchantID")
	}
	if cfg.PhonePe.SaltIndex == "" {
		missing = append(missing, "PhonePe.SaltIndex")
	}
	if cfg.Checkout.TransactionTimeout <= 0 {
		missing = append(missing, "Checkout.TransactionTimeout")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Storage.MaxUploadBytes <= 0 {
		missing = append(missing, "Storage.MaxUploadBytes")
	}
	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func missingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	seen := make(map[string]struct{}, len(required))
	var names []string
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if resolved[name] == "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return &MissingSecretsError{names: names}
}
