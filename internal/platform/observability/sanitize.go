package observability

import "unicode"

// sanitize strips control characters and truncates to limit runes to keep
// request derived values from forging log lines.
func sanitize(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	out := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, r)
	}
	return string(out)
}

// SanitizeRoute cleans a route pattern for logging.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitize(route, 180)
}

// SanitizeUserID shortens identifiers before they reach the logs.
func SanitizeUserID(uid string) string {
	return sanitize(uid, 64)
}
