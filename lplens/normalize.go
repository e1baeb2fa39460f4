// CLAUDE:SUMMARY Landing page input validation: URL scheme completion and safety, display name bounds.
package lplens

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	maxURLLen  = 2048
	maxNameLen = 200
)

// NormalizeURL validates a user-supplied landing page URL and prefixes
// https:// when no scheme is given. Only http and https are accepted.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	if len(raw) > maxURLLen {
		return "", fmt.Errorf("%w: url exceeds %d characters", ErrInvalidInput, maxURLLen)
	}
	if strings.ContainsAny(raw, " \t\r\n") {
		return "", fmt.Errorf("%w: malformed url", ErrInvalidInput)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidInput, u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidInput)
	}
	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}

// normalizeName trims the display name; empty means none.
func normalizeName(name string) (*string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return nil, fmt.Errorf("%w: name exceeds %d characters", ErrInvalidInput, maxNameLen)
	}
	return &name, nil
}
