package storage

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

const coversPrefix = "covers/"

// CoverPath composes the object key for a book cover upload:
// covers/{bookId}/{uploadId}/{fileName}.
func CoverPath(bookID, uploadID, fileName string) (string, error) {
	bookID, err := validateSegment("bookID", bookID)
	if err != nil {
		return "", err
	}
	uploadID, err = validateSegment("uploadID", uploadID)
	if err != nil {
		return "", err
	}
	fileName, err = validateSegment("fileName", fileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s/%s/%s", coversPrefix, bookID, uploadID, fileName), nil
}

// ValidateCoverKey reports whether key is a well-formed cover object key.
// Deletes are restricted to this prefix.
func ValidateCoverKey(key string) error {
	key = strings.TrimSpace(key)
	if !strings.HasPrefix(key, coversPrefix) {
		return fmt.Errorf("storage: key %q is outside the covers prefix", key)
	}
	parts := strings.Split(strings.TrimPrefix(key, coversPrefix), "/")
	if len(parts) != 3 {
		return fmt.Errorf("storage: key %q is not a cover key", key)
	}
	for _, part := range parts {
		if _, err := validateSegment("key", part); err != nil {
			return err
		}
	}
	return nil
}

// PublicURL joins the public base URL (CDN or bucket host) and an object key.
func PublicURL(baseURL, key string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return ""
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	u.Path = path.Join(u.Path, key)
	return u.String()
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
