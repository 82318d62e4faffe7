package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

type fakeSigner struct {
	email    string
	payloads [][]byte
	err      error
}

func (f *fakeSigner) Email() string {
	return f.email
}

func (f *fakeSigner) SignBytes(_ context.Context, payload []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	return []byte("signed"), nil
}

func newTestClient(t *testing.T, signer *fakeSigner, now time.Time) *Client {
	t.Helper()
	client, err := NewClient(signer, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}
	return client
}

func TestSignedUploadURLSuccess(t *testing.T) {
	signer := &fakeSigner{email: "uploads@exambook.iam.gserviceaccount.com"}
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	client := newTestClient(t, signer, now)

	res, err := client.SignedUploadURL(context.Background(), "covers-bucket", "covers/book-1/01HX/cover.png", UploadOptions{
		ContentType:         "Image/PNG",
		ContentMD5:          "xN0dYbCPv0CM0k9d1u8G7g==",
		AllowedContentTypes: []string{"image/png", "image/jpeg"},
		MaxSize:             1 << 20,
		ExpiresIn:           10 * time.Minute,
		CacheControl:        "public, max-age=86400",
	})
	if err != nil {
		t.Fatalf("SignedUploadURL returned error: %v", err)
	}

	if res.Method != "PUT" {
		t.Fatalf("expected method PUT, got %s", res.Method)
	}
	if !res.ExpiresAt.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", res.ExpiresAt)
	}
	if res.Headers["Content-Type"] != "image/png" {
		t.Fatalf("expected normalised Content-Type header, got %v", res.Headers)
	}
	if res.Headers["x-goog-content-length-range"] != "0,1048576" {
		t.Fatalf("expected content length header, got %v", res.Headers)
	}
	if res.Headers["Cache-Control"] != "public, max-age=86400" {
		t.Fatalf("expected cache control header, got %v", res.Headers)
	}

	parsed, err := url.Parse(res.URL)
	if err != nil {
		t.Fatalf("failed to parse signed URL: %v", err)
	}
	if !strings.Contains(parsed.RawQuery, "X-Goog-Signature=") {
		t.Fatalf("expected signature in query: %s", parsed.RawQuery)
	}
	if !strings.Contains(parsed.Path, "covers/book-1/01HX/cover.png") {
		t.Fatalf("expected object path in url, got %s", parsed.Path)
	}
	if len(signer.payloads) == 0 {
		t.Fatalf("expected signer to be invoked")
	}
}

func TestSignedUploadURLWildcardContentType(t *testing.T) {
	client := newTestClient(t, &fakeSigner{email: "uploads@exambook.iam.gserviceaccount.com"}, time.Now())

	if _, err := client.SignedUploadURL(context.Background(), "bucket", "object", UploadOptions{
		ContentType:         "image/webp",
		AllowedContentTypes: []string{"image/*"},
	}); err != nil {
		t.Fatalf("expected wildcard to allow image/webp, got %v", err)
	}
}

func TestSignedUploadURLRejectsInvalidContentType(t *testing.T) {
	client := newTestClient(t, &fakeSigner{email: "uploads@exambook.iam.gserviceaccount.com"}, time.Now())

	_, err := client.SignedUploadURL(context.Background(), "bucket", "object", UploadOptions{
		ContentType:         "application/pdf",
		AllowedContentTypes: []string{"image/png"},
	})
	if !errors.Is(err, ErrContentTypeDenied) {
		t.Fatalf("expected ErrContentTypeDenied, got %v", err)
	}
}

func TestSignedUploadURLValidation(t *testing.T) {
	client := newTestClient(t, &fakeSigner{email: "uploads@exambook.iam.gserviceaccount.com"}, time.Now())

	tests := []struct {
		name   string
		bucket string
		object string
		opts   UploadOptions
		want   error
	}{
		{name: "bucket", bucket: " ", object: "o", opts: UploadOptions{ContentType: "image/png"}, want: errInvalidBucket},
		{name: "object", bucket: "b", object: "", opts: UploadOptions{ContentType: "image/png"}, want: errInvalidObject},
		{name: "method", bucket: "b", object: "o", opts: UploadOptions{Method: "GET", ContentType: "image/png"}, want: errMethodNotAllowed},
		{name: "content type", bucket: "b", object: "o", opts: UploadOptions{}, want: errContentTypeMissing},
		{name: "md5", bucket: "b", object: "o", opts: UploadOptions{ContentType: "image/png", ContentMD5: "%%%"}, want: errMD5Invalid},
		{name: "expiry", bucket: "b", object: "o", opts: UploadOptions{ContentType: "image/png", ExpiresIn: 2 * time.Hour}, want: errExpiryTooLong},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.SignedUploadURL(context.Background(), tc.bucket, tc.object, tc.opts)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSignedUploadURLPropagatesSignerError(t *testing.T) {
	signErr := errors.New("kms unavailable")
	client := newTestClient(t, &fakeSigner{email: "uploads@exambook.iam.gserviceaccount.com", err: signErr}, time.Now())

	_, err := client.SignedUploadURL(context.Background(), "bucket", "object", UploadOptions{ContentType: "image/png"})
	if err == nil {
		t.Fatalf("expected signer error")
	}
}

func TestNewClientRequiresSigner(t *testing.T) {
	if _, err := NewClient(nil); !errors.Is(err, errNoSigner) {
		t.Fatalf("expected errNoSigner, got %v", err)
	}
	if _, err := NewClient(&fakeSigner{}); !errors.Is(err, errNoSigner) {
		t.Fatalf("expected errNoSigner for empty email, got %v", err)
	}
}
