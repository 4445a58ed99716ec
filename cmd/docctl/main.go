package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/gezibash/docio/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	_ "github.com/gezibash/docio/internal/remote/badger"
	_ "github.com/gezibash/docio/internal/remote/memory"
	_ "github.com/gezibash/docio/internal/remote/redis"
	_ "github.com/gezibash/docio/internal/remote/rest"
	_ "github.com/gezibash/docio/internal/remote/s3"
	_ "github.com/gezibash/docio/internal/remote/sqlite"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(viper.New()).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "docctl",
		Short:        "Read and write documents in a docio backend",
		SilenceUsage: true,
	}

	config.BindCommonFlags(rootCmd, v)
	rootCmd.PersistentFlags().StringP("output", "o", "text", "output format: text, json or markdown")
	_ = v.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))

	rootCmd.AddCommand(
		newPutCmd(v),
		newGetCmd(v),
		newDeleteCmd(v),
		newTxnCmd(v),
		newServeCmd(v),
		newBackendsCmd(v),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "docctl %s\n", version)
			_, _ = fmt.Fprintf(w, "  commit:  %s\n", commit)
			_, _ = fmt.Fprintf(w, "  built:   %s\n", buildDate)
			_, _ = fmt.Fprintf(w, "  go:      %s\n", runtime.Version())
		},
	}
}
