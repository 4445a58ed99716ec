// Package config loads docctl configuration from flags, environment and
// docio.yaml.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Defaults contains the default values for every setting.
var Defaults = struct {
	DataDir        string
	Backend        string
	Retries        int
	RetryBackoff   time.Duration
	Timeout        time.Duration
	ServeAddr      string
	LogLevel       string
	LogFormat      string
	MetricsAddr    string
	OTLPProtocol   string
	ServiceName    string
	ServiceVersion string
}{
	DataDir:        DefaultDataDir(),
	Backend:        "badger",
	Retries:        0,
	RetryBackoff:   100 * time.Millisecond,
	Timeout:        30 * time.Second,
	ServeAddr:      ":8080",
	LogLevel:       "info",
	LogFormat:      "text",
	MetricsAddr:    "",
	OTLPProtocol:   "http",
	ServiceName:    "docio",
	ServiceVersion: "dev",
}

// DefaultDataDir returns the default data directory (~/.docio).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docio"
	}
	return filepath.Join(home, ".docio")
}
