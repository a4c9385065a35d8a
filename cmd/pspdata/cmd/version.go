package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pspdata %s (commit %s, built %s)\n", Version, Commit, Date)
		},
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
