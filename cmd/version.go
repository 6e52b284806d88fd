package cmd

import (
	"fmt"

	"github.com/snapshot-labs/boost-guard/internal/version"
	"github.com/spf13/cobra"
)

var runVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the version of the boost guard",
	Run: func(cmd *cobra.Command, args []string) {
		v := version.GetVersion()
		commit := version.GetCommit()

		fmt.Printf("BoostGuardVersion: %s\nCommit: %s\n", v, commit)
	},
}
