package cli

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/fleetstake/fleetstake/cli/fleet"
)

// RootCmd represents the root command of the fleet CLI.
var RootCmd = &cobra.Command{
	Use:   "fleetnode",
	Short: "fleet-node",
	Long:  `Fleetnode is a CLI for running the staking node fleet manager.`,
}

// Execute executes the root command.
func Execute(appName, version string) {
	RootCmd.Short = appName
	RootCmd.Version = version

	if err := RootCmd.Execute(); err != nil {
		log.Fatalf("failed to execute root command: %v", err)
	}
}

func init() {
	RootCmd.AddCommand(fleet.StartNodeCmd)
}
