package proxy

import (
	"path"
	"strings"
)

// PathMatcher checks upstream document paths against allowed globs
type PathMatcher struct {
	allowedPatterns []string
}

// NewPathMatcher creates a new path matcher with allowed patterns
func NewPathMatcher(allowedPatterns []string) *PathMatcher {
	normalized := make([]string, 0, len(allowedPatterns))
	for _, p := range allowedPatterns {
		normalized = append(normalized, normalizePath(p))
	}
	return &PathMatcher{allowedPatterns: normalized}
}

// IsAllowed reports whether the path matches any pattern. Supported forms:
//   - /media/teams/* matches one segment under /media/teams
//   - /media/** matches /media and everything below it
//   - /api/members/*/document matches any member id
//
// An empty matcher denies everything.
func (pm *PathMatcher) IsAllowed(requestPath string) bool {
	if len(pm.allowedPatterns) == 0 {
		return false
	}

	requestPath = normalizePath(requestPath)
	for _, pattern := range pm.allowedPatterns {
		if matchGlobPattern(pattern, requestPath) {
			return true
		}
	}
	return false
}

// normalizePath ensures a leading slash, drops a trailing one and resolves
// dot segments so /media/../admin cannot slip past a /media/** rule
func normalizePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func matchGlobPattern(pattern, requestPath string) bool {
	if pattern == requestPath {
		return true
	}

	if strings.HasSuffix(pattern, "/**") {
		if pattern == "/**" {
			return true
		}
		prefix := strings.TrimSuffix(pattern, "/**")
		return requestPath == prefix || strings.HasPrefix(requestPath, prefix+"/")
	}

	if !strings.Contains(pattern, "*") {
		return false
	}

	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(requestPath, "/")
	if len(patternParts) != len(pathParts) {
		return false
	}
	for i, part := range patternParts {
		if part == "*" {
			if pathParts[i] == "" {
				return false
			}
			continue
		}
		if part != pathParts[i] {
			return false
		}
	}
	return true
}
