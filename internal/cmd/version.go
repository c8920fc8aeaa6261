package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "objmanifest %s\n", versionInfo.Version)
		_, _ = fmt.Fprintf(out, "commit:     %s\n", versionInfo.Commit)
		_, _ = fmt.Fprintf(out, "built:      %s\n", versionInfo.BuildDate)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
