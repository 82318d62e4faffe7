package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// DefaultMaxBodyBytes caps JSON request bodies unless a handler asks for more.
const DefaultMaxBodyBytes int64 = 64 * 1024

// ErrBodyTooLarge reports a request body above the configured limit.
var ErrBodyTooLarge = errors.New("httpx: request body too large")

// WriteJSON encodes payload with the given status code.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// ReadBody reads at most limit bytes from r.Body.
func ReadBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}

// DecodeJSON reads and decodes a JSON request body into dst.
func DecodeJSON(r *http.Request, limit int64, dst any) error {
	body, err := ReadBody(r, limit)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("httpx: empty request body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("httpx: invalid json: %w", err)
	}
	return nil
}

// BadBody converts a DecodeJSON failure into the matching envelope.
func BadBody(err error) Error {
	if errors.Is(err, ErrBodyTooLarge) {
		return NewError("payload_too_large", "request body too large", http.StatusRequestEntityTooLarge)
	}
	return NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest)
}
