package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	tcfg "github.com/kiliankoe/threader/cli/internal/config"
	"github.com/kiliankoe/threader/pkg/version"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Output == tcfg.OutputJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(version.GetInfo())
			}
			info := version.GetInfo()
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
			fmt.Fprintf(cmd.OutOrStdout(), " - go: %s\n", info.GoVersion)
			return nil
		},
	}
}
