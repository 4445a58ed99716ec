package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gezibash/docio/internal/config"
	"github.com/gezibash/docio/internal/observability"
	"github.com/gezibash/docio/pkg/client"
	"github.com/gezibash/docio/pkg/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// CommandConfig configures a CLI command that talks to a backend.
type CommandConfig struct {
	// Name identifies this command in logs.
	Name string

	// Cmd is the running cobra command; its --config and --backend-opt
	// flags are honored.
	Cmd *cobra.Command

	// Viper holds the command's configuration.
	Viper *viper.Viper

	// Run is the command's business logic.
	Run func(ctx context.Context, c *client.Client, out *Output) error
}

// LoadConfig loads the merged config for cmd, applying --config and
// --backend-opt.
func LoadConfig(cmd *cobra.Command, v *viper.Viper) (config.Config, error) {
	var file string
	if f := cmd.Flags().Lookup("config"); f != nil {
		file = f.Value.String()
	}
	cfg, err := config.Load(v, file)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := config.ApplyBackendOpts(cmd, &cfg); err != nil {
		return config.Config{}, fmt.Errorf("backend options: %w", err)
	}
	return cfg, nil
}

// RunCommand executes a client command with standard setup.
// Handles: LoadConfig -> log file -> observability -> Connect -> Output -> Run -> Close.
// Client-side logs go to {data_dir}/log/cli.log instead of stdout.
func RunCommand(ctx context.Context, cfg CommandConfig) (err error) {
	if cfg.Name == "" {
		return fmt.Errorf("command name required")
	}
	if cfg.Viper == nil || cfg.Cmd == nil {
		return fmt.Errorf("viper and command required")
	}
	if cfg.Run == nil {
		return fmt.Errorf("run function required")
	}

	conf, err := LoadConfig(cfg.Cmd, cfg.Viper)
	if err != nil {
		return err
	}

	logw, closeLog := OpenLogFile(conf.DataDir)
	defer closeLog()

	obs, err := observability.New(ctx, conf.Observability.Obs(), logw)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer func() {
		err = errors.Join(err, obs.Close(context.WithoutCancel(ctx)))
	}()

	logger := logging.New(obs.Logger).WithComponent(cfg.Name)
	c, err := client.Connect(ctx, conf.Remote.Backend, conf.RemoteSettings(),
		client.WithRetries(conf.Client.Retries),
		client.WithRetryBackoff(conf.Client.RetryBackoff),
		client.WithTimeout(conf.Client.Timeout),
		client.WithLogger(logger),
		client.WithMetrics(obs.Metrics),
	)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, c.Close())
	}()

	logger.DebugContext(ctx, "command start", "backend", conf.Remote.Backend)
	return cfg.Run(ctx, c, NewOutputFromViper(cfg.Viper))
}

// OpenLogFile opens {dataDir}/log/cli.log for appending. When the file
// cannot be opened logs are discarded.
func OpenLogFile(dataDir string) (io.Writer, func()) {
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}
	logDir := filepath.Join(dataDir, "log")
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return io.Discard, func() {}
	}
	f, err := os.OpenFile(filepath.Join(logDir, "cli.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // path is constructed from known data dir
	if err != nil {
		return io.Discard, func() {}
	}
	return f, func() { _ = f.Close() }
}
