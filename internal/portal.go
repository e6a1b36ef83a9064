package internal

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/abdelrahman-a99/nucpa-front/internal/auth"
	"github.com/abdelrahman-a99/nucpa-front/internal/config"
	"github.com/abdelrahman-a99/nucpa-front/internal/cookie"
	"github.com/abdelrahman-a99/nucpa-front/internal/log"
	"github.com/abdelrahman-a99/nucpa-front/internal/proxy"
	"github.com/abdelrahman-a99/nucpa-front/internal/relay"
	"github.com/abdelrahman-a99/nucpa-front/internal/server"
	"github.com/abdelrahman-a99/nucpa-front/internal/session"
	"github.com/abdelrahman-a99/nucpa-front/internal/urlutil"
)

// Portal is the assembled backend-for-frontend
type Portal struct {
	config     config.Config
	handler    http.Handler
	httpServer *server.HTTPServer
}

// NewPortal builds every component from the configuration
func NewPortal(ctx context.Context, cfg config.Config, version string) (*Portal, error) {
	backendURL := cfg.BackendURL()
	log.LogInfoWithFields("portal", "Building portal", map[string]any{
		"backend":   backendURL,
		"publicURL": cfg.Server.PublicURL,
		"dev":       cfg.IsDev(),
	})

	paths := cfg.Backend.Paths
	endpoint := func(p string) (string, error) {
		u, err := urlutil.Endpoint(backendURL, p)
		if err != nil {
			return "", fmt.Errorf("invalid backend endpoint %q: %w", p, err)
		}
		return u, nil
	}
	tokenURL, err := endpoint(paths.Token)
	if err != nil {
		return nil, err
	}
	refreshURL, err := endpoint(paths.Refresh)
	if err != nil {
		return nil, err
	}
	logoutURL, err := endpoint(paths.Logout)
	if err != nil {
		return nil, err
	}
	statusURL, err := endpoint(paths.Status)
	if err != nil {
		return nil, err
	}

	backendOrigins, err := origins(cfg.BackendOrigins())
	if err != nil {
		return nil, err
	}
	appOrigin, err := urlutil.Origin(cfg.Server.PublicURL)
	if err != nil {
		return nil, fmt.Errorf("invalid public URL: %w", err)
	}

	store := cookie.NewStore(cookie.Options{
		UserTTL:  cfg.Cookies.UserTTL,
		AdminTTL: cfg.Cookies.AdminTTL,
		Domain:   cfg.Cookies.Domain,
		Secure:   !cfg.IsDev(),
	})
	httpClient := proxy.NewHTTPClient(cfg.Backend.Timeout)
	refresher := auth.NewRefreshClient(auth.RefreshOptions{
		Endpoint:   refreshURL,
		HTTPClient: httpClient,
		Coalesce:   cfg.CoalesceRefresh(),
	})
	sessions := session.NewService(session.Endpoints{
		Token:  tokenURL,
		Logout: logoutURL,
		Status: statusURL,
	}, store, refresher, httpClient)

	policy := relay.OriginPolicy{Backend: backendOrigins, App: appOrigin}

	handler := server.NewRouter(server.RouterConfig{
		Forwarder: proxy.NewForwarder(store, refresher, proxy.Options{
			BackendURL:   backendURL,
			ScopeHeader:  cfg.Auth.AdminHeader,
			MaxBodyBytes: cfg.Backend.MaxBodyBytes,
			HTTPClient:   httpClient,
		}),
		Auth: server.NewAuthHandlers(sessions, store, policy, cfg.Auth.RelayMessageType, cfg.Auth.AdminHeader),
		Pages: relay.NewPages(relay.PageConfig{
			BackendURL:      backendURL,
			BackendOrigins:  backendOrigins,
			GoogleLoginPath: paths.GoogleLogin,
			SuccessPath:     paths.GoogleSuccess,
			AppOrigin:       appOrigin,
			StartPath:       "/auth/google",
			CallbackPath:    cfg.Auth.CallbackPath,
			StorePath:       "/api/auth/store",
			AfterLoginPath:  cfg.Auth.AfterLoginPath,
			MessageType:     cfg.Auth.RelayMessageType,
			Timeout:         cfg.Auth.RelayTimeout,
		}),
		Health:         server.NewHealthHandler(version),
		RateLimiter:    server.NewRateLimiter(cfg.Auth.RateLimit.PerMinute, cfg.Auth.RateLimit.Burst),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ScopeHeader:    cfg.Auth.AdminHeader,
		CallbackPath:   cfg.Auth.CallbackPath,
		BackendOrigins: backendOrigins,
		DocumentPaths:  cfg.Backend.DocumentPaths,
	})

	return &Portal{
		config:     cfg,
		handler:    handler,
		httpServer: server.NewHTTPServer(handler, cfg.Server.Addr),
	}, nil
}

// Handler exposes the fully wired router
func (p *Portal) Handler() http.Handler {
	return p.handler
}

func origins(urls []string) ([]string, error) {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		o, err := urlutil.Origin(u)
		if err != nil {
			return nil, fmt.Errorf("invalid backend URL %q: %w", u, err)
		}
		out = append(out, o)
	}
	return out, nil
}

// Run serves until SIGINT, SIGTERM or a server error
func (p *Portal) Run() error {
	ln, err := net.Listen("tcp", p.config.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", p.config.Server.Addr, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return p.serve(ctx, ln)
}

func (p *Portal) serve(ctx context.Context, ln net.Listener) error {
	log.LogInfoWithFields("portal", "Starting portal", map[string]any{
		"addr": ln.Addr().String(),
	})

	errChan := make(chan error, 1)
	go func() {
		if err := p.httpServer.Serve(ln); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	var shutdownReason string
	select {
	case err := <-errChan:
		log.LogErrorWithFields("portal", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
		return err
	case <-ctx.Done():
		shutdownReason = "signal"
		log.LogInfoWithFields("portal", "Received shutdown signal", nil)
	}

	timeout := p.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	log.LogInfoWithFields("portal", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": timeout.String(),
	})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := p.httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields("portal", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	log.LogInfoWithFields("portal", "Shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return nil
}
