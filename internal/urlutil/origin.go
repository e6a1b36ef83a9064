package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// Origin returns scheme://host[:port] for an absolute URL, lowercased
func Origin(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("not an absolute URL: %q", raw)
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), nil
}

// MatchesOrigin reports whether origin equals one of the allowed origins.
// Allowed entries may be full URLs; only their origin part is compared.
func MatchesOrigin(origin string, allowed ...string) bool {
	if origin == "" {
		return false
	}
	got, err := Origin(origin)
	if err != nil {
		return false
	}
	for _, a := range allowed {
		want, err := Origin(a)
		if err != nil {
			continue
		}
		if got == want {
			return true
		}
	}
	return false
}
