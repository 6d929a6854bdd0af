package cmd

import (
	"os"

	"github.com/encodeous/pbgp/state"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pbgp",
	Short: "Private BGP route computation",
	Long: `pbgp computes BGP best paths over a simulated AS topology.
Route preferences are secret shared between a group of participants, only the chosen next hops are revealed.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Initialize a group",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "run",
		Title: "Compute routes",
	})
	rootCmd.PersistentFlags().StringVarP(&state.NodeConfigPath, "node-config", "n", state.NodeConfigPath, "participant-specific config")
	rootCmd.PersistentFlags().StringVarP(&state.CentralConfigPath, "central-config", "c", state.CentralConfigPath, "group-global config")
}

func addDebugFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	cmd.Flags().BoolVarP(&state.DBG_log_rounds, "lround", "r", false, "Write round boundaries to the console")
	cmd.Flags().BoolVarP(&state.DBG_log_gates, "lgate", "g", false, "Write every received fragment to the console")
	cmd.Flags().BoolVarP(&state.DBG_log_route_changes, "lrchange", "t", false, "Outputs route changes to the console")
	cmd.Flags().BoolVar(&state.DBG_trace, "dbg-trace", false, "Write a runtime trace to trace.out")
	cmd.Flags().BoolVar(&state.DBG_debug, "dbg-http", false, "Serve pprof and metrics on :6060")
}
