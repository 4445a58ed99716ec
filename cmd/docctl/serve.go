package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gezibash/docio/internal/cli"
	"github.com/gezibash/docio/internal/config"
	"github.com/gezibash/docio/internal/observability"
	"github.com/gezibash/docio/internal/restapi"
	"github.com/gezibash/docio/pkg/remote"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured backend over REST",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, v)
		},
	}
	config.BindServeFlags(cmd, v)
	return cmd
}

func runServe(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := cli.LoadConfig(cmd, v)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	obs, err := observability.New(ctx, cfg.Observability.Obs(), os.Stderr)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.Serve.Addr)
	if err != nil {
		_ = obs.Close(context.WithoutCancel(ctx))
		return fmt.Errorf("listen %s: %w", cfg.Serve.Addr, err)
	}
	return serve(ctx, obs, cfg, ln)
}

// serve runs the REST server on ln until ctx is cancelled, then shuts
// everything down in reverse start order.
func serve(ctx context.Context, obs *observability.Observability, cfg config.Config, ln net.Listener) (err error) {
	logger := obs.Logger
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if cerr := obs.Close(shutdownCtx); cerr != nil {
			logger.Error("shutdown error", "error", cerr)
			err = errors.Join(err, cerr)
		}
	}()

	ops, err := remote.New(ctx, cfg.Remote.Backend, cfg.RemoteSettings(), obs.Metrics)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("init backend: %w", err)
	}
	obs.Shutdown.Register("backend", func(context.Context) error {
		return ops.Close()
	})

	opts := []restapi.Option{
		restapi.WithMetrics(obs.Metrics),
		restapi.WithLogger(logger),
		restapi.WithBasicAuth(cfg.Serve.Users),
	}
	if addr := cfg.Observability.MetricsAddr; addr != "" {
		obs.ServeMetrics(ctx, addr)
	} else {
		opts = append(opts, restapi.WithHandler("/metrics", obs.MetricsHandler()))
	}

	srv := &http.Server{
		Handler:           restapi.New(ops, opts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	obs.Shutdown.Register("rest-server", srv.Shutdown)

	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "serving", "addr", ln.Addr().String(), "backend", cfg.Remote.Backend)
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	}
}
