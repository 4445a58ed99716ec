package config

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. DOCIO_REMOTE_BACKEND.
const EnvPrefix = "DOCIO"

// SetDefaults configures every default on a Viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", Defaults.DataDir)

	v.SetDefault("remote.backend", Defaults.Backend)

	v.SetDefault("client.retries", Defaults.Retries)
	v.SetDefault("client.retry_backoff", Defaults.RetryBackoff)
	v.SetDefault("client.timeout", Defaults.Timeout)

	v.SetDefault("serve.addr", Defaults.ServeAddr)

	v.SetDefault("observability.log_level", Defaults.LogLevel)
	v.SetDefault("observability.log_format", Defaults.LogFormat)
	v.SetDefault("observability.metrics_addr", Defaults.MetricsAddr)
	v.SetDefault("observability.otlp_endpoint", "")
	v.SetDefault("observability.otlp_protocol", Defaults.OTLPProtocol)
	v.SetDefault("observability.otlp_insecure", false)
	v.SetDefault("observability.service_name", Defaults.ServiceName)
	v.SetDefault("observability.service_version", Defaults.ServiceVersion)
}

// BindCommonFlags adds the flags every command shares as persistent flags
// on cmd and binds them to Viper.
func BindCommonFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.PersistentFlags()

	f.String("config", "", "config file path")
	f.String("data-dir", "", "data directory (default ~/.docio)")
	f.String("backend", "", "remote backend (badger, memory, sqlite, redis, s3, rest)")
	f.StringToString("backend-opt", nil, "backend setting as key=value (repeatable)")
	f.Int("retries", 0, "retry failed document calls this many times")
	f.Duration("timeout", 0, "per-call timeout")
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.String("log-format", "", "log format (json, text)")

	_ = v.BindPFlag("data_dir", f.Lookup("data-dir"))
	_ = v.BindPFlag("remote.backend", f.Lookup("backend"))
	_ = v.BindPFlag("client.retries", f.Lookup("retries"))
	_ = v.BindPFlag("client.timeout", f.Lookup("timeout"))
	_ = v.BindPFlag("observability.log_level", f.Lookup("log-level"))
	_ = v.BindPFlag("observability.log_format", f.Lookup("log-format"))
}

// BindServeFlags binds the serve command's flags.
func BindServeFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.Flags()

	f.String("addr", "", "REST listen address")
	f.String("metrics-addr", "", "separate metrics listen address (default: serve /metrics on --addr)")
	f.String("otlp-endpoint", "", "OTLP trace collector endpoint")

	_ = v.BindPFlag("serve.addr", f.Lookup("addr"))
	_ = v.BindPFlag("observability.metrics_addr", f.Lookup("metrics-addr"))
	_ = v.BindPFlag("observability.otlp_endpoint", f.Lookup("otlp-endpoint"))
}

// Load reads config from flags, env, and file, returning the merged
// Config. Without an explicit configFile, docio.yaml is searched in .,
// $HOME/.docio and /etc/docio; a missing file is not an error.
func Load(v *viper.Viper, configFile string) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("docio")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.docio")
		v.AddConfigPath("/etc/docio")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyBackendOpts merges --backend-opt values into cfg's backend config.
func ApplyBackendOpts(cmd *cobra.Command, cfg *Config) error {
	f := cmd.Flags().Lookup("backend-opt")
	if f == nil || !f.Changed {
		return nil
	}
	opts, err := cmd.Flags().GetStringToString("backend-opt")
	if err != nil {
		return err
	}
	if cfg.Remote.Config == nil {
		cfg.Remote.Config = make(map[string]string, len(opts))
	}
	for k, val := range opts {
		cfg.Remote.Config[k] = val
	}
	return nil
}
