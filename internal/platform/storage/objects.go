package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// ErrObjectNotFound is returned when deleting an object that does not exist.
var ErrObjectNotFound = errors.New("storage: object not found")

// ObjectRemover deletes uploaded objects.
type ObjectRemover struct {
	client *gcs.Client
}

// NewObjectRemover constructs an ObjectRemover backed by the Cloud Storage client.
func NewObjectRemover(client *gcs.Client) (*ObjectRemover, error) {
	if client == nil {
		return nil, errors.New("storage remover: client is required")
	}
	return &ObjectRemover{client: client}, nil
}

// DeleteObject removes bucket/object.
func (r *ObjectRemover) DeleteObject(ctx context.Context, bucket, object string) error {
	if r == nil || r.client == nil {
		return errors.New("storage remover: client is not initialised")
	}
	bucket = strings.TrimSpace(bucket)
	object = strings.TrimSpace(object)
	if bucket == "" || object == "" {
		return errors.New("storage remover: bucket and object must be provided")
	}
	err := r.client.Bucket(bucket).Object(object).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return ErrObjectNotFound
	}
	if err != nil {
		return fmt.Errorf("storage remover: delete %s: %w", object, err)
	}
	return nil
}
