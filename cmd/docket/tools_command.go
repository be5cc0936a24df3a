package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docket/internal/deps"
	"docket/internal/textutil"
)

func newToolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "tools",
		Short:       "Check availability of external tools",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("External Tools", colorize) {
				fmt.Fprintln(out, line)
			}

			missing := false
			for _, status := range deps.CheckBinaries(deps.DefaultRequirements()) {
				kind := statusOK
				message := status.Description
				if !status.Available {
					kind = textutil.Ternary(status.Optional, statusWarn, statusError)
					message = status.Detail
					if !status.Optional {
						missing = true
					}
				}
				fmt.Fprintln(out, renderStatusLine(status.Name, kind, message, colorize))
			}
			if missing {
				return fmt.Errorf("required tools are missing")
			}
			return nil
		},
	}
}
