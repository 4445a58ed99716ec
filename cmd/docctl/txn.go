package main

import (
	"context"
	"fmt"

	"github.com/gezibash/docio/internal/cli"
	"github.com/gezibash/docio/pkg/client"
	"github.com/gezibash/docio/pkg/transaction"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Transactions outlive a single docctl invocation only on backends that
// keep them outside the process (redis, s3, rest).
func newTxnCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "txn",
		Short: "Open, commit and roll back transactions",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "begin",
			Short: "Open a transaction and print its id",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return cli.RunCommand(cmd.Context(), cli.CommandConfig{
					Name:  "txn-begin",
					Cmd:   cmd,
					Viper: v,
					Run: func(ctx context.Context, c *client.Client, out *cli.Output) error {
						tx, err := c.OpenTransaction(ctx)
						if err != nil {
							return fmt.Errorf("open transaction: %w", err)
						}
						return out.Result("txn-begin", "transaction opened").With("id", tx.ID()).Render()
					},
				})
			},
		},
		newResolveCmd(v, "commit", "Commit a transaction", "transaction committed", (*transaction.Transaction).Commit),
		newResolveCmd(v, "rollback", "Roll back a transaction", "transaction rolled back", (*transaction.Transaction).Rollback),
	)
	return cmd
}

func newResolveCmd(v *viper.Viper, name, short, done string, resolve func(*transaction.Transaction, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return cli.RunCommand(cmd.Context(), cli.CommandConfig{
				Name:  "txn-" + name,
				Cmd:   cmd,
				Viper: v,
				Run: func(ctx context.Context, c *client.Client, out *cli.Output) error {
					if err := resolve(transaction.New(c.Remote(), id), ctx); err != nil {
						return fmt.Errorf("%s transaction: %w", name, err)
					}
					return out.Result("txn-"+name, done).With("id", id).Render()
				},
			})
		},
	}
}
