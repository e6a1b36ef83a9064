package config

import (
	"time"

	"github.com/abdelrahman-a99/nucpa-front/internal/envutil"
)

// Defaults applied when the config leaves a field empty
const (
	DefaultAddr             = ":3000"
	DefaultBackendTimeout   = 30 * time.Second
	DefaultMaxBodyBytes     = 50 << 20
	DefaultUserTTL          = 20 * time.Minute
	DefaultAdminTTL         = 2 * time.Hour
	DefaultAdminHeader      = "X-Admin-Access"
	DefaultRelayMessageType = "GOOGLE_LOGIN_SUCCESS"
	DefaultCallbackPath     = "/auth/callback"
	DefaultAfterLoginPath   = "/register"
	DefaultRelayTimeout     = 2 * time.Minute
	DefaultShutdownTimeout  = 30 * time.Second
)

// DefaultDocumentPaths limits /api/documents to uploaded media and member
// document downloads
var DefaultDocumentPaths = []string{"/media/**", "/api/members/*/document/*"}

// UpstreamPaths are the backend endpoints the portal calls on its own
// behalf, relative to the backend base URL
type UpstreamPaths struct {
	Token         string `json:"token"`
	Refresh       string `json:"refresh"`
	Logout        string `json:"logout"`
	Status        string `json:"status"`
	GoogleLogin   string `json:"googleLogin"`
	GoogleSuccess string `json:"googleSuccess"`
}

// ServerConfig controls the listening side of the portal
type ServerConfig struct {
	Addr string `json:"addr"`
	// Env is "development" or "production". Falls back to NUCPA_ENV.
	Env string `json:"env"`
	// PublicURL is the portal's own origin as seen by browsers
	PublicURL       string        `json:"publicURL"`
	AllowedOrigins  []string      `json:"allowedOrigins"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout"`
}

// BackendConfig points at the upstream registration API
type BackendConfig struct {
	DevURL       string        `json:"devURL"`
	ProdURL      string        `json:"prodURL"`
	Timeout      time.Duration `json:"timeout"`
	MaxBodyBytes int64         `json:"maxBodyBytes"`
	Paths        UpstreamPaths `json:"paths"`

	// DocumentPaths are path globs a /documents?url= target must match
	DocumentPaths []string `json:"documentPaths"`
}

// CookieConfig controls credential cookie attributes
type CookieConfig struct {
	UserTTL  time.Duration `json:"userTTL"`
	AdminTTL time.Duration `json:"adminTTL"`
	Domain   string        `json:"domain"`
}

// RateLimitConfig is a token bucket per client IP
type RateLimitConfig struct {
	PerMinute float64 `json:"perMinute"`
	Burst     int     `json:"burst"`
}

// AuthConfig controls scope selection and the OAuth relay
type AuthConfig struct {
	AdminHeader      string          `json:"adminHeader"`
	RelayMessageType string          `json:"relayMessageType"`
	CallbackPath     string          `json:"callbackPath"`
	AfterLoginPath   string          `json:"afterLoginPath"`
	RelayTimeout     time.Duration   `json:"relayTimeout"`
	CoalesceRefresh  *bool           `json:"coalesceRefresh"`
	RateLimit        RateLimitConfig `json:"rateLimit"`
}

// Config is the root configuration structure
type Config struct {
	Version string        `json:"version"`
	Server  ServerConfig  `json:"server"`
	Backend BackendConfig `json:"backend"`
	Cookies CookieConfig  `json:"cookies"`
	Auth    AuthConfig    `json:"auth"`
}

// IsDev reports whether the portal runs against the development backend
func (c *Config) IsDev() bool {
	if c.Server.Env != "" {
		return envutil.IsDevValue(c.Server.Env)
	}
	return envutil.IsDev()
}

// BackendURL returns the base URL for the current environment
func (c *Config) BackendURL() string {
	if c.IsDev() && c.Backend.DevURL != "" {
		return c.Backend.DevURL
	}
	if c.Backend.ProdURL != "" {
		return c.Backend.ProdURL
	}
	return c.Backend.DevURL
}

// BackendOrigins lists every configured backend base URL. Document URLs
// and relay messages are accepted from any of them.
func (c *Config) BackendOrigins() []string {
	var out []string
	for _, u := range []string{c.Backend.DevURL, c.Backend.ProdURL} {
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}

// CoalesceRefresh defaults to on
func (c *Config) CoalesceRefresh() bool {
	return c.Auth.CoalesceRefresh == nil || *c.Auth.CoalesceRefresh
}
