package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ptimeout version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ptimeout %s\n", version)
	},
}

func init() {
	rootCmd.SetVersionTemplate("ptimeout {{.Version}}\n")
	rootCmd.AddCommand(versionCmd)
}
