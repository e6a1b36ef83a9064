package urlutil

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Endpoint resolves an upstream path such as "/api/token/" against the
// backend base URL. The base may carry a path prefix. A trailing slash on
// the last element is kept because the backend distinguishes them.
func Endpoint(base string, elems ...string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("backend url must be absolute: %q", base)
	}

	joined := path.Join(append([]string{"/", u.Path}, elems...)...)
	if n := len(elems); n > 0 && strings.HasSuffix(elems[n-1], "/") && joined != "/" {
		joined += "/"
	}
	u.Path = joined
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// MustEndpoint is Endpoint for base URLs that were already validated
func MustEndpoint(base string, elems ...string) string {
	result, err := Endpoint(base, elems...)
	if err != nil {
		panic(err)
	}
	return result
}
