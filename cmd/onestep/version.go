package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/onestep"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of onestep",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "onestep version %s\n", onestep.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
