package main

import (
	"maps"
	"slices"
	"strings"

	"github.com/gezibash/docio/internal/cli"
	"github.com/gezibash/docio/pkg/remote"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newBackendsCmd(v *viper.Viper) *cobra.Command {
	var namesOnly bool
	cmd := &cobra.Command{
		Use:   "backends",
		Short: "List registered backends and their default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cli.NewOutput(cli.ParseFormat(v.GetString("output")), cmd.OutOrStdout())
			if namesOnly {
				return out.StringList("backends").Add(remote.ListBackends()...).Render()
			}
			tbl := out.Table("backends", "Name", "Defaults")
			for _, name := range remote.ListBackends() {
				tbl.AddRow(name, formatDefaults(remote.GetDefaults(name)))
			}
			return tbl.Render()
		},
	}
	cmd.Flags().BoolVar(&namesOnly, "names", false, "print backend names only")
	return cmd
}

func formatDefaults(defaults map[string]string) string {
	pairs := make([]string, 0, len(defaults))
	for _, k := range slices.Sorted(maps.Keys(defaults)) {
		pairs = append(pairs, k+"="+defaults[k])
	}
	return strings.Join(pairs, " ")
}
