package config

import (
	"maps"
	"path/filepath"
	"time"

	"github.com/gezibash/docio/internal/observability"
)

// Config is the merged docctl configuration.
type Config struct {
	DataDir       string              `mapstructure:"data_dir"`
	Remote        RemoteConfig        `mapstructure:"remote"`
	Client        ClientConfig        `mapstructure:"client"`
	Serve         ServeConfig         `mapstructure:"serve"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// RemoteConfig selects the backend documents are stored in.
type RemoteConfig struct {
	Backend string            `mapstructure:"backend"`
	Config  map[string]string `mapstructure:"config"`
}

// ClientConfig tunes document calls.
type ClientConfig struct {
	Retries      int           `mapstructure:"retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// ServeConfig configures the REST endpoint.
type ServeConfig struct {
	Addr  string            `mapstructure:"addr"`
	Users map[string]string `mapstructure:"users"`
}

// ObservabilityConfig holds logging, metrics and tracing settings.
type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	MetricsAddr    string `mapstructure:"metrics_addr"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPProtocol   string `mapstructure:"otlp_protocol"`
	OTLPInsecure   bool   `mapstructure:"otlp_insecure"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
}

// Obs converts to the observability package's config.
func (o ObservabilityConfig) Obs() observability.ObsConfig {
	return observability.ObsConfig{
		LogLevel:       o.LogLevel,
		LogFormat:      o.LogFormat,
		OTLPEndpoint:   o.OTLPEndpoint,
		OTLPProtocol:   o.OTLPProtocol,
		OTLPInsecure:   o.OTLPInsecure,
		ServiceName:    o.ServiceName,
		ServiceVersion: o.ServiceVersion,
	}
}

// fileBackends store documents on local disk.
var fileBackends = map[string]string{
	"badger": "badger",
	"sqlite": "docio.db",
}

// RemoteSettings returns the backend config map. File-backed backends
// without an explicit path get one under the data directory.
func (c Config) RemoteSettings() map[string]string {
	out := make(map[string]string, len(c.Remote.Config)+1)
	maps.Copy(out, c.Remote.Config)
	if name, ok := fileBackends[c.Remote.Backend]; ok && out["path"] == "" {
		dir := c.DataDir
		if dir == "" {
			dir = DefaultDataDir()
		}
		out["path"] = filepath.Join(dir, name)
	}
	return out
}
