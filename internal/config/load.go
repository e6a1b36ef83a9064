package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/abdelrahman-a99/nucpa-front/internal/log"
	"gopkg.in/yaml.v3"
)

// SupportedVersion is the config schema prefix this build understands
const SupportedVersion = "v1"

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return Config{}, err
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, SupportedVersion) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	ApplyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// readConfigFile returns the file content as JSON. YAML files are
// converted so both formats share one parsing path.
func readConfigFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if !isYAML(path) {
		return data, nil
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	converted, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("converting config YAML: %w", err)
	}
	return converted, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// ApplyDefaults fills unset fields
func ApplyDefaults(c *Config) {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = DefaultBackendTimeout
	}
	if c.Backend.MaxBodyBytes == 0 {
		c.Backend.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if len(c.Backend.DocumentPaths) == 0 {
		c.Backend.DocumentPaths = append([]string(nil), DefaultDocumentPaths...)
	}

	p := &c.Backend.Paths
	setDefault(&p.Token, "/api/token/")
	setDefault(&p.Refresh, "/api/token/refresh/")
	setDefault(&p.Logout, "/api/auth/logout/")
	setDefault(&p.Status, "/api/auth/status/")
	setDefault(&p.GoogleLogin, "/accounts/google/login/")
	setDefault(&p.GoogleSuccess, "/api/auth/google/success/")

	if c.Cookies.UserTTL == 0 {
		c.Cookies.UserTTL = DefaultUserTTL
	}
	if c.Cookies.AdminTTL == 0 {
		c.Cookies.AdminTTL = DefaultAdminTTL
	}

	setDefault(&c.Auth.AdminHeader, DefaultAdminHeader)
	setDefault(&c.Auth.RelayMessageType, DefaultRelayMessageType)
	setDefault(&c.Auth.CallbackPath, DefaultCallbackPath)
	setDefault(&c.Auth.AfterLoginPath, DefaultAfterLoginPath)
	if c.Auth.RelayTimeout == 0 {
		c.Auth.RelayTimeout = DefaultRelayTimeout
	}
	if c.Auth.RateLimit.PerMinute == 0 {
		c.Auth.RateLimit.PerMinute = 30
	}
	if c.Auth.RateLimit.Burst == 0 {
		c.Auth.RateLimit.Burst = 10
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Backend.DevURL == "" && config.Backend.ProdURL == "" {
		return fmt.Errorf("backend.devURL or backend.prodURL is required")
	}
	for field, raw := range map[string]string{
		"backend.devURL":   config.Backend.DevURL,
		"backend.prodURL":  config.Backend.ProdURL,
		"server.publicURL": config.Server.PublicURL,
	} {
		if raw == "" {
			continue
		}
		if err := validateAbsoluteURL(raw); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	if config.Server.PublicURL == "" {
		return fmt.Errorf("server.publicURL is required")
	}
	if !strings.HasPrefix(config.Auth.CallbackPath, "/") {
		return fmt.Errorf("auth.callbackPath must start with /")
	}
	if !strings.HasPrefix(config.Auth.AfterLoginPath, "/") {
		return fmt.Errorf("auth.afterLoginPath must start with /")
	}
	if config.Auth.RateLimit.PerMinute < 0 || config.Auth.RateLimit.Burst < 0 {
		return fmt.Errorf("auth.rateLimit values cannot be negative")
	}

	if config.Cookies.UserTTL > config.Cookies.AdminTTL {
		log.LogWarn("User cookie TTL is longer than the admin cookie TTL")
	}
	if !config.IsDev() && strings.HasPrefix(config.BackendURL(), "http://") {
		log.LogWarn("Production backend URL is not HTTPS")
	}

	return nil
}

func validateAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an http(s) URL, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}

// DefaultConfig returns the document written by -config-init
func DefaultConfig() map[string]any {
	return map[string]any{
		"version": SupportedVersion,
		"server": map[string]any{
			"addr":           ":3000",
			"env":            map[string]string{"$env": "NUCPA_ENV"},
			"publicURL":      "https://nucpa.example.com",
			"allowedOrigins": []string{"https://nucpa.example.com"},
		},
		"backend": map[string]any{
			"devURL":       "http://localhost:8000",
			"prodURL":      map[string]string{"$env": "NUCPA_BACKEND_URL"},
			"timeout":      "30s",
			"maxBodyBytes": DefaultMaxBodyBytes,
		},
		"cookies": map[string]any{
			"userTTL":  "20m",
			"adminTTL": "2h",
		},
		"auth": map[string]any{
			"adminHeader":     DefaultAdminHeader,
			"callbackPath":    DefaultCallbackPath,
			"afterLoginPath":  DefaultAfterLoginPath,
			"coalesceRefresh": true,
			"rateLimit": map[string]any{
				"perMinute": 30,
				"burst":     10,
			},
		},
	}
}
