package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	defaultVersion      = "latest"
	meterName           = "github.com/exambook-store/api/internal/platform/secrets"
)

// ErrSecretNotFound is returned when neither Secret Manager nor the fallback file has the secret.
var ErrSecretNotFound = errors.New("secrets: secret not found")

type accessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret://name[@version] references against Secret Manager,
// caching values for the life of the process. In local environments a
// "ref=value" fallback file stands in for Secret Manager.
type Fetcher struct {
	client    accessClient
	ownClient bool
	logger    *zap.Logger
	projectID string
	fallback  string

	fallbackOnce sync.Once
	fallbackVals map[string]string

	mu    sync.RWMutex
	cache map[string]string

	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter
}

type options struct {
	logger    *zap.Logger
	projectID string
	fallback  string
	client    accessClient
	clientOps []option.ClientOption
	meter     metric.Meter
}

// Option customises a Fetcher.
type Option func(*options)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option { return func(o *options) { o.logger = logger } }

// WithProject sets the Secret Manager project for short references.
func WithProject(projectID string) Option {
	return func(o *options) { o.projectID = strings.TrimSpace(projectID) }
}

// WithFallbackFile overrides the local fallback path.
func WithFallbackFile(path string) Option { return func(o *options) { o.fallback = path } }

// WithClient injects a Secret Manager client, mostly for tests.
func WithClient(client accessClient) Option { return func(o *options) { o.client = client } }

// WithClientOptions forwards options to the Secret Manager client constructor.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.clientOps = append(o.clientOps, opts...) }
}

// WithMeter overrides the otel meter.
func WithMeter(m metric.Meter) Option { return func(o *options) { o.meter = m } }

// NewFetcher builds a Fetcher. A Secret Manager client that cannot be created
// leaves the fetcher in fallback-only mode instead of failing startup.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	o := options{logger: zap.NewNop(), fallback: defaultFallbackPath}
	for _, opt := range opts {
		opt(&o)
	}
	if o.meter == nil {
		o.meter = otel.GetMeterProvider().Meter(meterName)
	}

	f := &Fetcher{
		client:    o.client,
		logger:    o.logger,
		projectID: o.projectID,
		fallback:  o.fallback,
		cache:     make(map[string]string),
	}
	var err error
	if f.latency, err = o.meter.Float64Histogram("secrets.fetch.latency",
		metric.WithUnit("ms"), metric.WithDescription("Secret Manager access latency")); err != nil {
		f.logger.Warn("secrets: latency metric unavailable", zap.Error(err))
	}
	if f.cacheHits, err = o.meter.Int64Counter("secrets.fetch.cache_hits",
		metric.WithDescription("Secret lookups served from cache")); err != nil {
		f.logger.Warn("secrets: cache metric unavailable", zap.Error(err))
	}

	if f.client == nil {
		client, err := secretmanager.NewClient(ctx, o.clientOps...)
		if err != nil {
			f.logger.Warn("secrets: secret manager unavailable; using fallback file only", zap.Error(err))
		} else {
			f.client = client
			f.ownClient = true
		}
	}
	return f, nil
}

// ResolveSecret satisfies config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve returns the secret value for ref.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	resource, canonical, err := f.resourceName(ref)
	if err != nil {
		return "", err
	}

	f.mu.RLock()
	value, ok := f.cache[resource]
	f.mu.RUnlock()
	if ok {
		if f.cacheHits != nil {
			f.cacheHits.Add(ctx, 1)
		}
		return value, nil
	}

	value, err = f.access(ctx, resource)
	if err != nil {
		if fb, ok := f.lookupFallback(canonical); ok && fallbackEligible(err) {
			f.logger.Info("secrets: served from fallback file", zap.String("ref", mask(canonical)))
			value, err = fb, nil
		}
	}
	if err != nil {
		return "", fmt.Errorf("secrets: resolve %s: %w", mask(canonical), err)
	}

	f.mu.Lock()
	f.cache[resource] = value
	f.mu.Unlock()
	return value, nil
}

// Invalidate drops a cached value so the next Resolve refetches it.
func (f *Fetcher) Invalidate(ref string) {
	resource, _, err := f.resourceName(ref)
	if err != nil {
		return
	}
	f.mu.Lock()
	delete(f.cache, resource)
	f.mu.Unlock()
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f == nil || f.client == nil || !f.ownClient {
		return nil
	}
	return f.client.Close()
}

func (f *Fetcher) access(ctx context.Context, resource string) (string, error) {
	if f.client == nil {
		return "", ErrSecretNotFound
	}
	start := time.Now()
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
	if f.latency != nil {
		outcome := "ok"
		if err != nil {
			outcome = status.Code(err).String()
		}
		f.latency.Record(ctx, float64(time.Since(start).Microseconds())/1000,
			metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", ErrSecretNotFound
		}
		return "", err
	}
	return string(resp.GetPayload().GetData()), nil
}

// resourceName maps secret://name[@version] and full resource paths to
// projects/P/secrets/N/versions/V, also returning the canonical reference.
func (f *Fetcher) resourceName(ref string) (string, string, error) {
	trimmed := strings.TrimSpace(ref)
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "secret://"), "sm://")
	if trimmed == "" {
		return "", "", errors.New("secrets: empty reference")
	}
	canonical := "secret://" + trimmed
	if strings.HasPrefix(trimmed, "projects/") {
		if !strings.Contains(trimmed, "/versions/") {
			trimmed += "/versions/" + defaultVersion
		}
		return trimmed, canonical, nil
	}
	name, version, ok := strings.Cut(trimmed, "@")
	if !ok || version == "" {
		version = defaultVersion
	}
	if f.projectID == "" {
		return "", "", fmt.Errorf("secrets: project required for %s", mask(canonical))
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", f.projectID, name, version), canonical, nil
}

func (f *Fetcher) lookupFallback(canonical string) (string, bool) {
	f.fallbackOnce.Do(func() {
		f.fallbackVals = map[string]string{}
		file, err := os.Open(f.fallback)
		if err != nil {
			return
		}
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			key = strings.TrimSpace(key)
			if !strings.HasPrefix(key, "secret://") {
				key = "secret://" + strings.TrimPrefix(key, "sm://")
			}
			f.fallbackVals[key] = strings.TrimSpace(value)
		}
	})
	value, ok := f.fallbackVals[canonical]
	return value, ok
}

func fallbackEligible(err error) bool {
	if errors.Is(err, ErrSecretNotFound) {
		return true
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable:
		return true
	}
	return false
}

func mask(ref string) string {
	if len(ref) <= 12 {
		return "secret://***"
	}
	return ref[:12] + "***"
}
