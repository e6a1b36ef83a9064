package config

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

var bashStyleRegex = regexp.MustCompile(`\$\{?[A-Z_][A-Z0-9_]*\}?`)

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	data, err := readConfigFile(path)
	if err != nil {
		if strings.Contains(err.Error(), "parsing config YAML") {
			result.addError("", "invalid YAML: %v", err)
			return result, nil
		}
		return nil, err
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result, nil
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": %q", SupportedVersion)
	} else if !strings.HasPrefix(version, SupportedVersion) {
		result.addError("version", "unsupported version '%s' - use '%s'", version, SupportedVersion)
	}

	validateServerStructure(rawConfig, result)
	validateBackendStructure(rawConfig, result)
	validateCookiesStructure(rawConfig, result)
	validateAuthStructure(rawConfig, result)

	return result, nil
}

func section(rawConfig map[string]any, name string, required bool, result *ValidationResult) map[string]any {
	v, exists := rawConfig[name]
	if !exists {
		if required {
			result.addError(name, "%s field is required and must be an object", name)
		}
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		result.addError(name, "%s must be an object", name)
		return nil
	}
	return m
}

func validateServerStructure(rawConfig map[string]any, result *ValidationResult) {
	server := section(rawConfig, "server", true, result)
	if server == nil {
		return
	}

	if _, ok := server["publicURL"]; !ok {
		result.addError("server.publicURL", "publicURL is required. Hint: the origin browsers use to reach the portal")
	} else {
		validateStringOrEnv(server["publicURL"], "server.publicURL", result)
	}

	if env, ok := server["env"].(string); ok {
		switch strings.ToLower(env) {
		case "development", "dev", "production", "prod":
		default:
			result.addWarning("server.env", "unknown env %q - treated as production", env)
		}
	}

	if origins, exists := server["allowedOrigins"]; exists {
		list, ok := origins.([]any)
		if !ok {
			result.addError("server.allowedOrigins", "allowedOrigins must be an array")
		} else if len(list) == 0 {
			result.addWarning("server.allowedOrigins", "empty allowedOrigins disables cross-origin requests")
		}
	}

	validateDurationField(server, "shutdownTimeout", "server", result)
}

func validateBackendStructure(rawConfig map[string]any, result *ValidationResult) {
	backend := section(rawConfig, "backend", true, result)
	if backend == nil {
		return
	}

	_, hasDev := backend["devURL"]
	_, hasProd := backend["prodURL"]
	if !hasDev && !hasProd {
		result.addError("backend", "at least one of devURL or prodURL is required")
	}
	if !hasProd {
		result.addWarning("backend.prodURL", "prodURL is not set - production deployments fall back to devURL")
	}
	for _, key := range []string{"devURL", "prodURL"} {
		if v, ok := backend[key]; ok {
			validateStringOrEnv(v, "backend."+key, result)
		}
	}

	validateDurationField(backend, "timeout", "backend", result)

	if v, ok := backend["maxBodyBytes"]; ok {
		n, isNum := v.(float64)
		if !isNum || n < 0 {
			result.addError("backend.maxBodyBytes", "maxBodyBytes must be a non-negative number")
		}
	}

	if paths, ok := backend["paths"].(map[string]any); ok {
		for key, v := range paths {
			s, isString := v.(string)
			if !isString || !strings.HasPrefix(s, "/") {
				result.addError("backend.paths."+key, "upstream path must be a string starting with /")
			}
		}
	}
}

func validateCookiesStructure(rawConfig map[string]any, result *ValidationResult) {
	cookies := section(rawConfig, "cookies", false, result)
	if cookies == nil {
		return
	}

	user := validateDurationField(cookies, "userTTL", "cookies", result)
	admin := validateDurationField(cookies, "adminTTL", "cookies", result)
	if admin > 0 && admin > 12*time.Hour {
		result.addWarning("cookies.adminTTL", "adminTTL of %s is long for an admin session", admin)
	}
	if user > 0 && admin > 0 && user > admin {
		result.addWarning("cookies", "userTTL (%s) is longer than adminTTL (%s)", user, admin)
	}
}

func validateAuthStructure(rawConfig map[string]any, result *ValidationResult) {
	auth := section(rawConfig, "auth", false, result)
	if auth == nil {
		return
	}

	for _, key := range []string{"callbackPath", "afterLoginPath"} {
		if v, ok := auth[key]; ok {
			s, isString := v.(string)
			if !isString || !strings.HasPrefix(s, "/") {
				result.addError("auth."+key, "%s must be a path starting with /", key)
			}
		}
	}

	if v, ok := auth["coalesceRefresh"]; ok {
		if _, isBool := v.(bool); !isBool {
			result.addError("auth.coalesceRefresh", "coalesceRefresh must be a boolean")
		}
	}

	validateDurationField(auth, "relayTimeout", "auth", result)

	if rl, ok := auth["rateLimit"].(map[string]any); ok {
		for _, key := range []string{"perMinute", "burst"} {
			if v, exists := rl[key]; exists {
				if n, isNum := v.(float64); !isNum || n < 0 {
					result.addError("auth.rateLimit."+key, "%s must be a non-negative number", key)
				}
			}
		}
	}
}

func validateDurationField(m map[string]any, key, prefix string, result *ValidationResult) time.Duration {
	v, ok := m[key]
	if !ok {
		return 0
	}
	path := prefix + "." + key
	s, isString := v.(string)
	if !isString {
		result.addError(path, "%s must be a duration string like \"30s\"", key)
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		result.addError(path, "invalid duration %q: %v", s, err)
		return 0
	}
	if d < 0 {
		result.addError(path, "%s cannot be negative", key)
		return 0
	}
	return d
}

// validateStringOrEnv accepts a plain string or an {"$env": "VAR"} reference
func validateStringOrEnv(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		if v == "" {
			result.addError(path, "value cannot be empty")
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			result.addError(path, "reference must use {\"$env\": \"YOUR_ENV_VAR\"} format, not %v", v)
		}
	default:
		result.addError(path, "must be a string or {\"$env\": \"YOUR_ENV_VAR\"}, not %T", value)
	}
}

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", match, varName)
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
