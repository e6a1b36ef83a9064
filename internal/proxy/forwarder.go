package proxy

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/abdelrahman-a99/nucpa-front/internal/auth"
	"github.com/abdelrahman-a99/nucpa-front/internal/cookie"
	jsonwriter "github.com/abdelrahman-a99/nucpa-front/internal/json"
	"github.com/abdelrahman-a99/nucpa-front/internal/log"
)

// Options configures a Forwarder
type Options struct {
	BackendURL   string
	ScopeHeader  string
	MaxBodyBytes int64
	HTTPClient   *http.Client
}

// Forwarder relays browser requests to the backend, attaching the bearer
// token from the credential cookies and refreshing it at most once
type Forwarder struct {
	backendURL   string
	scopeHeader  string
	maxBodyBytes int64
	store        cookie.Store
	refresher    auth.Refresher
	httpClient   *http.Client
}

// NewForwarder creates a forwarder
func NewForwarder(store cookie.Store, refresher auth.Refresher, opts Options) *Forwarder {
	client := opts.HTTPClient
	if client == nil {
		client = NewHTTPClient(30 * time.Second)
	}
	return &Forwarder{
		backendURL:   opts.BackendURL,
		scopeHeader:  opts.ScopeHeader,
		maxBodyBytes: opts.MaxBodyBytes,
		store:        store,
		refresher:    refresher,
		httpClient:   client,
	}
}

// NewHTTPClient returns a client that hands redirects back to the browser
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Handler returns an http.Handler forwarding according to route
func (f *Forwarder) Handler(route Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.Forward(w, r, route)
	})
}

// Forward runs the forwarding algorithm for a single inbound request
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, route Route) {
	start := time.Now()

	if !route.allows(r.Method) {
		jsonwriter.WriteMethodNotAllowed(w, route.Methods)
		return
	}

	scope := cookie.ScopeFromRequest(r, f.scopeHeader)
	if route.Admin {
		scope = cookie.ScopeAdmin
	}

	pair := f.store.Read(r, scope)
	if pair.Empty() && !route.Public {
		log.LogDebugWithFields("proxy", "No credentials for scope", map[string]any{
			"route": route.Name,
			"scope": scope.String(),
		})
		jsonwriter.WriteUnauthorized(w, "authentication required")
		return
	}

	target, err := route.Target(r, f.backendURL)
	if err != nil {
		log.LogWarnWithFields("proxy", "Rejected upstream target", map[string]any{
			"route": route.Name,
			"error": err.Error(),
		})
		jsonwriter.WriteBadRequest(w, targetErrorMessage(err))
		return
	}

	body, contentType, isMultipart, err := readBody(r, f.maxBodyBytes)
	if err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			jsonwriter.WriteRequestTooLarge(w, "request body too large")
			return
		}
		jsonwriter.WriteBadRequest(w, "unreadable request body")
		return
	}

	out := &outbound{
		method:      r.Method,
		url:         target,
		body:        body,
		contentType: contentType,
		multipart:   isMultipart,
	}

	resp, err := f.send(r, out, pair.Access)
	if err != nil {
		f.connectivityError(w, r, route, err)
		return
	}

	refreshed := false
	if resp.StatusCode == http.StatusUnauthorized && pair.Refresh != "" {
		drain(resp)

		token, err := f.refresher.Refresh(r.Context(), pair.Refresh)
		if err != nil {
			log.LogWarnWithFields("proxy", "Refresh unavailable", map[string]any{
				"route": route.Name,
				"scope": scope.String(),
				"error": err.Error(),
			})
			jsonwriter.WriteUnauthorized(w, "session expired")
			return
		}
		if token == nil {
			// The backend rejected the refresh token; the pair is dead.
			f.store.Clear(w, scope)
			log.LogInfoWithFields("proxy", "Refresh rejected, session cleared", map[string]any{
				"route": route.Name,
				"scope": scope.String(),
			})
			jsonwriter.WriteUnauthorized(w, "session expired")
			return
		}

		next := auth.NextPair(token, pair.Refresh)
		if err := f.store.Store(w, scope, next); err != nil {
			log.LogErrorWithFields("proxy", "Failed to store refreshed credentials", map[string]any{
				"route": route.Name,
				"error": err.Error(),
			})
		}
		refreshed = true
		pair = next

		// Single retry. A second 401 goes back to the browser as-is.
		resp, err = f.send(r, out, next.Access)
		if err != nil {
			f.connectivityError(w, r, route, err)
			return
		}
	}
	defer resp.Body.Close()

	copyResponseHeaders(w.Header(), resp.Header)
	if route.DefaultDisposition != "" && w.Header().Get("Content-Disposition") == "" &&
		resp.StatusCode >= 200 && resp.StatusCode < 300 {
		w.Header().Set("Content-Disposition", route.DefaultDisposition)
	}
	w.WriteHeader(resp.StatusCode)

	written, err := io.Copy(w, resp.Body)
	if err != nil {
		log.LogWarnWithFields("proxy", "Response stream interrupted", map[string]any{
			"route": route.Name,
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("proxy", "Request forwarded", map[string]any{
		"route":       route.Name,
		"method":      r.Method,
		"scope":       scope.String(),
		"status":      resp.StatusCode,
		"refreshed":   refreshed,
		"multipart":   out.multipart,
		"bytes":       written,
		"subject":     auth.Subject(pair.Access),
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func (f *Forwarder) send(r *http.Request, out *outbound, access string) (*http.Response, error) {
	req, err := out.newRequest(r, f.scopeHeader, access)
	if err != nil {
		return nil, err
	}
	return f.httpClient.Do(req)
}

func (f *Forwarder) connectivityError(w http.ResponseWriter, r *http.Request, route Route, err error) {
	log.LogErrorWithFields("proxy", "Backend unreachable", map[string]any{
		"route": route.Name,
		"error": err.Error(),
	})
	if route.OnConnectivityError != nil {
		route.OnConnectivityError(w, r, err)
		return
	}
	jsonwriter.WriteBadGateway(w, "upstream unavailable")
}

func targetErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrForeignDocumentURL):
		return "document url is not allowed"
	case errors.Is(err, ErrInvalidDocumentURL):
		return "missing or invalid url parameter"
	default:
		return "invalid request path"
	}
}

// drain discards a small remainder so the connection can be reused
func drain(resp *http.Response) {
	_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
	resp.Body.Close()
}
