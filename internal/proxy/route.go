package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/abdelrahman-a99/nucpa-front/internal/urlutil"
	"github.com/go-chi/chi/v5"
)

var (
	// ErrInvalidDocumentURL is returned for a missing or unparsable url parameter
	ErrInvalidDocumentURL = errors.New("invalid document url")
	// ErrForeignDocumentURL is returned when a document url points outside the backend
	ErrForeignDocumentURL = errors.New("document url is not served by the backend")
)

// TargetFunc resolves the absolute upstream URL for an inbound request
type TargetFunc func(r *http.Request, backendURL string) (string, error)

// Route parameterizes the forwarder for one endpoint
type Route struct {
	Name    string
	Methods []string
	Target  TargetFunc

	// Admin pins the route to the admin credential scope regardless of the
	// scope header
	Admin bool
	// Public routes are forwarded even without credentials
	Public bool
	// DefaultDisposition is used on successful responses without one
	DefaultDisposition string
	// OnConnectivityError replaces the default 502 body
	OnConnectivityError func(w http.ResponseWriter, r *http.Request, err error)
}

func (rt Route) allows(method string) bool {
	if len(rt.Methods) == 0 {
		return true
	}
	for _, m := range rt.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// PathTarget builds the upstream URL from a pattern such as
// "/api/teams/{id}/". Placeholders are filled from chi URL params and the
// inbound query string is forwarded unchanged.
func PathTarget(pattern string) TargetFunc {
	return func(r *http.Request, backendURL string) (string, error) {
		p, err := expandPattern(pattern, func(name string) string {
			return chi.URLParam(r, name)
		})
		if err != nil {
			return "", err
		}
		target := strings.TrimSuffix(backendURL, "/") + p
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		return target, nil
	}
}

func expandPattern(pattern string, param func(string) string) (string, error) {
	var b strings.Builder
	rest := pattern
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return "", fmt.Errorf("unterminated placeholder in %q", pattern)
		}
		name := rest[open+1 : open+end]
		value := param(name)
		if value == "" {
			return "", fmt.Errorf("missing path parameter %q", name)
		}
		b.WriteString(rest[:open])
		b.WriteString(url.PathEscape(value))
		rest = rest[open+end+1:]
	}
}

// DocumentTarget resolves the ?url= parameter of the document proxy. The
// URL may be absolute or relative to the backend; absolute URLs must share
// an origin with one of the known backends and the path must match one of
// the allowed globs.
func DocumentTarget(origins []string, allowedPaths []string) TargetFunc {
	matcher := NewPathMatcher(allowedPaths)
	return func(r *http.Request, backendURL string) (string, error) {
		raw := strings.TrimSpace(r.URL.Query().Get("url"))
		if raw == "" {
			return "", ErrInvalidDocumentURL
		}

		u, err := url.Parse(raw)
		if err != nil {
			return "", ErrInvalidDocumentURL
		}

		var target *url.URL
		switch {
		case u.IsAbs():
			if u.Scheme != "http" && u.Scheme != "https" {
				return "", ErrForeignDocumentURL
			}
			if !urlutil.MatchesOrigin(raw, origins...) {
				return "", ErrForeignDocumentURL
			}
			target = u
		case u.Host != "" || !strings.HasPrefix(u.Path, "/"):
			// protocol-relative (//host/x) or bare relative paths
			return "", ErrForeignDocumentURL
		default:
			base, err := url.Parse(backendURL)
			if err != nil {
				return "", fmt.Errorf("invalid backend url: %w", err)
			}
			target = base.ResolveReference(u)
		}

		if target.User != nil || !matcher.IsAllowed(target.Path) {
			return "", ErrForeignDocumentURL
		}
		return target.String(), nil
	}
}
