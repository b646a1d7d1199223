package config

import (
	"os"
	"strings"
)

// EnvironmentExpander replaces environment placeholders in raw configuration bytes.
type EnvironmentExpander interface {
	Expand(input []byte) ([]byte, error)
}

// OsEnvironmentExpander expands $VAR, ${VAR} and ${VAR:-default} from the process environment.
// An unset variable without a default expands to the empty string.
type OsEnvironmentExpander struct {
	lookup func(string) (string, bool)
}

// NewOsEnvironmentExpander creates an expander backed by os.LookupEnv.
func NewOsEnvironmentExpander() *OsEnvironmentExpander {
	return &OsEnvironmentExpander{lookup: os.LookupEnv}
}

// Expand implements EnvironmentExpander. It never returns an error.
func (e *OsEnvironmentExpander) Expand(input []byte) ([]byte, error) {
	expanded := os.Expand(string(input), func(key string) string {
		name, fallback, hasDefault := strings.Cut(key, ":-")
		if value, ok := e.lookup(name); ok && value != "" {
			return value
		}
		if hasDefault {
			return fallback
		}
		return ""
	})
	return []byte(expanded), nil
}
