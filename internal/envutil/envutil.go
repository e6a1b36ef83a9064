package envutil

import (
	"os"
	"strings"
)

// EnvVar selects the deployment environment. Config can override it.
const EnvVar = "NUCPA_ENV"

// IsDev reports whether we run against the development backend,
// where cookies are not marked Secure
func IsDev() bool {
	return IsDevValue(os.Getenv(EnvVar))
}

// IsDevValue applies the same rule to an explicit value
func IsDevValue(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "development" || env == "dev"
}
