package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// RawConfigValue represents a value that could be a plain string or an env ref.
// This is only used during parsing, not in the final config.
type RawConfigValue struct {
	value string
}

// ParseConfigValue parses a JSON value that could be a string or reference object
func ParseConfigValue(raw json.RawMessage) (*RawConfigValue, error) {
	// Try plain string first
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return &RawConfigValue{value: str}, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return nil, fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return nil, fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return &RawConfigValue{value: value}, nil
}

func parseString(raw json.RawMessage, field string) (string, error) {
	if raw == nil {
		return "", nil
	}
	parsed, err := ParseConfigValue(raw)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", field, err)
	}
	return parsed.value, nil
}

func parseStrings(raw []json.RawMessage, field string) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	values := make([]string, 0, len(raw))
	for i, item := range raw {
		v, err := parseString(item, fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func parseDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s cannot be negative", field)
	}
	return d, nil
}

// UnmarshalJSON resolves env references in the server section
func (s *ServerConfig) UnmarshalJSON(data []byte) error {
	type rawServer struct {
		Addr            json.RawMessage   `json:"addr"`
		Env             json.RawMessage   `json:"env"`
		PublicURL       json.RawMessage   `json:"publicURL"`
		AllowedOrigins  []json.RawMessage `json:"allowedOrigins"`
		ShutdownTimeout string            `json:"shutdownTimeout"`
	}

	var raw rawServer
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if s.Addr, err = parseString(raw.Addr, "addr"); err != nil {
		return err
	}
	if s.Env, err = parseString(raw.Env, "env"); err != nil {
		return err
	}
	if s.PublicURL, err = parseString(raw.PublicURL, "publicURL"); err != nil {
		return err
	}
	if s.AllowedOrigins, err = parseStrings(raw.AllowedOrigins, "allowedOrigins"); err != nil {
		return err
	}
	if s.ShutdownTimeout, err = parseDuration(raw.ShutdownTimeout, "shutdownTimeout"); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON resolves env references in the backend section
func (b *BackendConfig) UnmarshalJSON(data []byte) error {
	type rawBackend struct {
		DevURL        json.RawMessage `json:"devURL"`
		ProdURL       json.RawMessage `json:"prodURL"`
		Timeout       string          `json:"timeout"`
		MaxBodyBytes  int64           `json:"maxBodyBytes"`
		Paths         UpstreamPaths   `json:"paths"`
		DocumentPaths []string        `json:"documentPaths"`
	}

	var raw rawBackend
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if b.DevURL, err = parseString(raw.DevURL, "devURL"); err != nil {
		return err
	}
	if b.ProdURL, err = parseString(raw.ProdURL, "prodURL"); err != nil {
		return err
	}
	if b.Timeout, err = parseDuration(raw.Timeout, "timeout"); err != nil {
		return err
	}
	if raw.MaxBodyBytes < 0 {
		return fmt.Errorf("maxBodyBytes cannot be negative")
	}
	b.MaxBodyBytes = raw.MaxBodyBytes
	b.Paths = raw.Paths
	b.DocumentPaths = raw.DocumentPaths
	return nil
}

// UnmarshalJSON parses cookie lifetimes
func (c *CookieConfig) UnmarshalJSON(data []byte) error {
	type rawCookies struct {
		UserTTL  string          `json:"userTTL"`
		AdminTTL string          `json:"adminTTL"`
		Domain   json.RawMessage `json:"domain"`
	}

	var raw rawCookies
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if c.UserTTL, err = parseDuration(raw.UserTTL, "userTTL"); err != nil {
		return err
	}
	if c.AdminTTL, err = parseDuration(raw.AdminTTL, "adminTTL"); err != nil {
		return err
	}
	if c.Domain, err = parseString(raw.Domain, "domain"); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON parses the auth section
func (a *AuthConfig) UnmarshalJSON(data []byte) error {
	type rawAuth struct {
		AdminHeader      string          `json:"adminHeader"`
		RelayMessageType string          `json:"relayMessageType"`
		CallbackPath     string          `json:"callbackPath"`
		AfterLoginPath   string          `json:"afterLoginPath"`
		RelayTimeout     string          `json:"relayTimeout"`
		CoalesceRefresh  *bool           `json:"coalesceRefresh"`
		RateLimit        RateLimitConfig `json:"rateLimit"`
	}

	var raw rawAuth
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.AdminHeader = raw.AdminHeader
	a.RelayMessageType = raw.RelayMessageType
	a.CallbackPath = raw.CallbackPath
	a.AfterLoginPath = raw.AfterLoginPath
	a.CoalesceRefresh = raw.CoalesceRefresh
	a.RateLimit = raw.RateLimit

	var err error
	if a.RelayTimeout, err = parseDuration(raw.RelayTimeout, "relayTimeout"); err != nil {
		return err
	}
	return nil
}
