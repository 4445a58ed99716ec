// Package settings gives typed access to the string maps remote backends
// are configured with.
package settings

import (
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Settings is a backend configuration map. Keys are backend specific.
type Settings map[string]string

// Merge returns a new map holding defaults overridden by overrides.
func Merge(defaults, overrides map[string]string) Settings {
	result := make(Settings, len(defaults)+len(overrides))
	maps.Copy(result, defaults)
	maps.Copy(result, overrides)
	return result
}

// Keys returns the configured keys in sorted order.
func (s Settings) Keys() []string {
	return slices.Sorted(maps.Keys(s))
}

// String returns the value for key, or def when it is absent or empty.
func (s Settings) String(key, def string) string {
	if v, ok := s[key]; ok && v != "" {
		return v
	}
	return def
}

// Required returns the value for key or a ConfigError naming backend.
func (s Settings) Required(backend, key string) (string, error) {
	v := s[key]
	if v == "" {
		return "", NewConfigError(backend, key, "is required")
	}
	return v, nil
}

// Bool accepts true/false, 1/0 and yes/no in any case.
func (s Settings) Bool(key string, def bool) (bool, error) {
	v, ok := s[key]
	if !ok || v == "" {
		return def, nil
	}

	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, &ConfigError{
			Field:   key,
			Value:   v,
			Message: "must be a boolean (true/false, 1/0, yes/no)",
		}
	}
}

// Int parses a base-10 integer.
func (s Settings) Int(key string, def int) (int, error) {
	v, ok := s[key]
	if !ok || v == "" {
		return def, nil
	}

	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, &ConfigError{
			Field:   key,
			Value:   v,
			Message: "must be an integer",
			Cause:   err,
		}
	}
	return i, nil
}

// Duration accepts Go duration strings ("5s", "1m30s") or integer seconds.
func (s Settings) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := s[key]
	if !ok || v == "" {
		return def, nil
	}

	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	return 0, &ConfigError{
		Field:   key,
		Value:   v,
		Message: "must be a duration (e.g., '5s', '1m30s') or integer seconds",
	}
}

// Path returns the value for key with a leading ~/ expanded to the home
// directory.
func (s Settings) Path(key, def string) string {
	return ExpandPath(s.String(key, def))
}

// ExpandPath expands ~ to the user's home directory and cleans the path.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return filepath.Clean(path)
}
