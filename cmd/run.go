package cmd

import (
	"fmt"

	"github.com/encodeous/pbgp/core"
	"github.com/encodeous/pbgp/state"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one participant",
	Long: `This runs one participant of the group over TCP. Every participant listed in the central config must be started,
the computation begins once all of them are connected.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		logPath, _ := cmd.Flags().GetString("log")
		out, err := core.Bootstrap(state.CentralConfigPath, state.NodeConfigPath, logPath, verbose)
		if err != nil {
			return err
		}
		fmt.Print(out.Table)
		return nil
	},
	GroupID: "run",
}

func init() {
	rootCmd.AddCommand(runCmd)
	addDebugFlags(runCmd)
	runCmd.Flags().String("log", "", "Also write logs to this file")
}
