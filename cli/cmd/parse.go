package cmd

import (
	"github.com/spf13/cobra"
)

func newParseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <post-url>",
		Short: "Show which platform handles a URL and its canonical form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := a.newRegistry(a.cfg.Platforms(), a.logger(cmd))
			parsed, err := registry.Parse(args[0])
			if err != nil {
				return describeFetchError(err)
			}
			return a.printer(cmd).Parsed(parsed)
		},
	}
}
