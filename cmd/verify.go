package cmd

import (
	"fmt"
	"log/slog"

	"github.com/encodeous/pbgp/core"
	"github.com/encodeous/pbgp/state"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Checks the configs and topology of a participant",
	RunE: func(cmd *cobra.Command, args []string) error {
		central, err := core.ReadCentralConfig(state.CentralConfigPath)
		if err != nil {
			return err
		}
		if err := state.CentralConfigValidator(central); err != nil {
			return err
		}
		if err := state.NetworkConfigValidator(central); err != nil {
			return err
		}
		local, err := core.ReadNodeConfig(state.NodeConfigPath)
		if err != nil {
			return err
		}
		if err := state.LocalConfigValidator(local, central); err != nil {
			return err
		}
		g, err := state.LoadGraph(central.Graph)
		if err != nil {
			return err
		}
		for _, skipped := range g.Skipped {
			slog.Warn("skipped malformed topology line", "err", skipped)
		}
		if err := state.GraphValidator(g, central, local); err != nil {
			return err
		}
		fmt.Printf("Participant %d of %d, session %s\n", local.Index, central.N(), central.Session)
		fmt.Printf("Topology has %d vertices, destination %d, %d lines skipped\n", g.Len(), central.Destination, len(g.Skipped))
		return nil
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
