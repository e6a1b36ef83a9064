package server

import (
	"net/http"

	jsonwriter "github.com/abdelrahman-a99/nucpa-front/internal/json"
	"github.com/abdelrahman-a99/nucpa-front/internal/log"
	"github.com/abdelrahman-a99/nucpa-front/internal/proxy"
	"github.com/abdelrahman-a99/nucpa-front/internal/relay"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// CSVDisposition is used when the export endpoint does not name its file
const CSVDisposition = `attachment; filename="export.csv"`

// RouterConfig wires the portal's handlers into one router
type RouterConfig struct {
	Forwarder      *proxy.Forwarder
	Auth           *AuthHandlers
	Pages          *relay.Pages
	Health         http.Handler
	RateLimiter    *RateLimiter
	AllowedOrigins []string
	ScopeHeader    string
	CallbackPath   string
	BackendOrigins []string
	DocumentPaths  []string
}

type proxyRoute struct {
	pattern string
	route   proxy.Route
}

func proxyRoutes(documents proxy.TargetFunc) []proxyRoute {
	return []proxyRoute{
		{"/api/teams", proxy.Route{
			Name:    "teams",
			Methods: []string{http.MethodGet, http.MethodPost},
			Target:  proxy.PathTarget("/api/teams/"),
		}},
		{"/api/teams/{id}", proxy.Route{
			Name:    "team",
			Methods: []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete},
			Target:  proxy.PathTarget("/api/teams/{id}/"),
		}},
		{"/api/teams/{id}/details", proxy.Route{
			Name:    "team_details",
			Methods: []string{http.MethodGet},
			Target:  proxy.PathTarget("/api/teams/{id}/details/"),
			Admin:   true,
		}},
		{"/api/members/{memberId}/document/{docType}", proxy.Route{
			Name:    "member_document",
			Methods: []string{http.MethodGet, http.MethodDelete},
			Target:  proxy.PathTarget("/api/members/{memberId}/document/{docType}/"),
		}},
		{"/api/documents", proxy.Route{
			Name:    "document",
			Methods: []string{http.MethodGet},
			Target:  documents,
		}},
		{"/api/export-csv", proxy.Route{
			Name:               "export_csv",
			Methods:            []string{http.MethodGet},
			Target:             proxy.PathTarget("/api/export-csv/"),
			Admin:              true,
			DefaultDisposition: CSVDisposition,
		}},
		{"/api/toggle-registration", proxy.Route{
			Name:    "toggle_registration",
			Methods: []string{http.MethodPost},
			Target:  proxy.PathTarget("/api/toggle-registration/"),
			Admin:   true,
		}},
		{"/api/validate", proxy.Route{
			Name:    "validate",
			Methods: []string{http.MethodGet},
			Target:  proxy.PathTarget("/api/validate/"),
		}},
		{"/api/registration-status", proxy.Route{
			Name:                "registration_status",
			Methods:             []string{http.MethodGet},
			Target:              proxy.PathTarget("/api/registration-status/"),
			Public:              true,
			OnConnectivityError: registrationOpenFallback,
		}},
	}
}

// registrationOpenFallback answers "open" when the backend cannot be
// reached. This keeps the public form usable during an outage, at the cost
// of showing it open while an admin may have closed it.
func registrationOpenFallback(w http.ResponseWriter, r *http.Request, err error) {
	log.LogWarnWithFields("proxy", "Registration status unavailable, reporting open", map[string]any{
		"error": err.Error(),
	})
	_ = jsonwriter.WriteResponse(w, http.StatusBadGateway, map[string]bool{"registration_open": true})
}

// NewRouter builds the portal's HTTP surface
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonwriter.WriteNotFound(w, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonwriter.WriteMethodNotAllowed(w, nil)
	})

	if cfg.Health != nil {
		r.Method(http.MethodGet, "/health", cfg.Health)
	}

	documents := proxy.DocumentTarget(cfg.BackendOrigins, cfg.DocumentPaths)
	for _, pr := range proxyRoutes(documents) {
		r.Handle(pr.pattern, cfg.Forwarder.Handler(pr.route))
	}

	limited := func(h http.HandlerFunc) http.Handler {
		if cfg.RateLimiter == nil {
			return h
		}
		return cfg.RateLimiter.Middleware()(h)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Method(http.MethodPost, "/store", limited(cfg.Auth.StoreUser))
		r.Method(http.MethodPost, "/store-admin", limited(cfg.Auth.StoreAdmin))
		r.Method(http.MethodPost, "/login", limited(cfg.Auth.Login))
		r.Post("/logout", cfg.Auth.Logout)
		r.Get("/status", cfg.Auth.Status)
	})

	if cfg.Pages != nil {
		callback := cfg.CallbackPath
		if callback == "" {
			callback = "/auth/callback"
		}
		r.Get("/auth/google", cfg.Pages.Start)
		r.Get(callback, cfg.Pages.Callback)
		r.Get("/auth/relay.js", cfg.Pages.Script)
	}

	return ChainMiddleware(r,
		NewCORSMiddleware(cfg.AllowedOrigins, cfg.ScopeHeader),
		NewLoggerMiddleware("http"),
		NewRecoverMiddleware("http"),
		NewRequestIDMiddleware(),
	)
}
