package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/exambook-store/api/internal/platform/storage"
	"github.com/exambook-store/api/internal/platform/textutil"
)

const (
	assetEventUploadIssued  = "asset.upload.issued"
	assetEventUploadDeleted = "asset.upload.deleted"

	defaultCoverMaxBytes = 5 << 20
	coverCacheControl    = "public, max-age=31536000, immutable"
)

var (
	// ErrAssetInvalidInput signals a malformed upload or delete request.
	ErrAssetInvalidInput = errors.New("asset: invalid input")
	// ErrAssetNotFound indicates the object to delete does not exist.
	ErrAssetNotFound = errors.New("asset: not found")
	// ErrAssetUnavailable indicates storage is not configured or failed.
	ErrAssetUnavailable = errors.New("asset: storage unavailable")
)

var coverContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// UploadURLSigner issues signed upload URLs.
type UploadURLSigner interface {
	SignedUploadURL(ctx context.Context, bucket, object string, opts storage.UploadOptions) (storage.SignedURLResult, error)
}

// ObjectDeleter removes stored objects.
type ObjectDeleter interface {
	DeleteObject(ctx context.Context, bucket, object string) error
}

// AssetServiceDeps bundles collaborators required to construct the asset service.
type AssetServiceDeps struct {
	Signer        UploadURLSigner
	Deleter       ObjectDeleter
	Bucket        string
	PublicBaseURL string
	URLTTL        time.Duration
	MaxBytes      int64
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type assetService struct {
	signer    UploadURLSigner
	deleter   ObjectDeleter
	bucket    string
	publicURL string
	ttl       time.Duration
	maxBytes  int64
	newID     func() string
	logger    serviceLogger
}

var _ AssetService = (*assetService)(nil)

// NewAssetService wires dependencies into a concrete AssetService implementation.
func NewAssetService(deps AssetServiceDeps) (AssetService, error) {
	if deps.Signer == nil {
		return nil, errors.New("asset service: upload signer is required")
	}
	bucket := strings.TrimSpace(deps.Bucket)
	if bucket == "" {
		return nil, errors.New("asset service: uploads bucket is required")
	}
	maxBytes := deps.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultCoverMaxBytes
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return strings.ToLower(ulid.Make().String()) }
	}
	return &assetService{
		signer:    deps.Signer,
		deleter:   deps.Deleter,
		bucket:    bucket,
		publicURL: deps.PublicBaseURL,
		ttl:       deps.URLTTL,
		maxBytes:  maxBytes,
		newID:     newID,
		logger:    ensureLogger(deps.Logger),
	}, nil
}

func (s *assetService) IssueCoverUpload(ctx context.Context, cmd CoverUploadCommand) (CoverUpload, error) {
	bookID := strings.TrimSpace(cmd.BookID)
	if bookID == "" {
		return CoverUpload{}, fmt.Errorf("%w: book id is required", ErrAssetInvalidInput)
	}
	contentType := strings.ToLower(strings.TrimSpace(cmd.ContentType))
	ext, ok := coverContentTypes[contentType]
	if !ok {
		return CoverUpload{}, fmt.Errorf("%w: content type %q is not an accepted image type", ErrAssetInvalidInput, cmd.ContentType)
	}
	if cmd.Size <= 0 {
		return CoverUpload{}, fmt.Errorf("%w: size is required", ErrAssetInvalidInput)
	}
	if cmd.Size > s.maxBytes {
		return CoverUpload{}, fmt.Errorf("%w: file exceeds %d bytes", ErrAssetInvalidInput, s.maxBytes)
	}

	uploadID := s.newID()
	key, err := storage.CoverPath(bookID, uploadID, coverFileName(cmd.FileName, ext))
	if err != nil {
		return CoverUpload{}, fmt.Errorf("%w: %v", ErrAssetInvalidInput, err)
	}
	signed, err := s.signer.SignedUploadURL(ctx, s.bucket, key, storage.UploadOptions{
		Method:              "PUT",
		ContentType:         contentType,
		ContentMD5:          cmd.ContentMD5,
		AllowedContentTypes: []string{"image/jpeg", "image/png", "image/webp"},
		MaxSize:             s.maxBytes,
		ExpiresIn:           s.ttl,
		CacheControl:        coverCacheControl,
	})
	if err != nil {
		if errors.Is(err, storage.ErrContentTypeDenied) {
			return CoverUpload{}, fmt.Errorf("%w: %v", ErrAssetInvalidInput, err)
		}
		return CoverUpload{}, fmt.Errorf("%w: %v", ErrAssetUnavailable, err)
	}

	s.logger(ctx, assetEventUploadIssued, map[string]any{
		"bookId":   bookID,
		"uploadId": uploadID,
		"key":      key,
		"actorId":  cmd.ActorID,
	})
	return CoverUpload{
		UploadID:  uploadID,
		Key:       key,
		URL:       signed.URL,
		Method:    signed.Method,
		Headers:   signed.Headers,
		ExpiresAt: signed.ExpiresAt,
		PublicURL: storage.PublicURL(s.publicURL, key),
	}, nil
}

func (s *assetService) DeleteUpload(ctx context.Context, cmd DeleteUploadCommand) error {
	key := strings.TrimSpace(cmd.Key)
	if err := storage.ValidateCoverKey(key); err != nil {
		return fmt.Errorf("%w: %v", ErrAssetInvalidInput, err)
	}
	if s.deleter == nil {
		return fmt.Errorf("%w: object deletion is not configured", ErrAssetUnavailable)
	}
	if err := s.deleter.DeleteObject(ctx, s.bucket, key); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return fmt.Errorf("%w: %s", ErrAssetNotFound, key)
		}
		return fmt.Errorf("%w: %v", ErrAssetUnavailable, err)
	}
	s.logger(ctx, assetEventUploadDeleted, map[string]any{"key": key, "actorId": cmd.ActorID})
	return nil
}

// coverFileName slugs the client file name and forces the extension that
// matches the declared content type.
func coverFileName(name, ext string) string {
	base := strings.TrimSuffix(path.Base(strings.ReplaceAll(name, "\\", "/")), path.Ext(name))
	slug := textutil.Slugify(base)
	if slug == "" {
		slug = "cover"
	}
	return slug + ext
}
