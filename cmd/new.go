package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/encodeous/pbgp/state"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

func writeYaml(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// newCmd writes the configs of a group whose participants all run on this host
var newCmd = &cobra.Command{
	Use:   "new [graph]",
	Short: "Creates configs for a local group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("participants")
		port, _ := cmd.Flags().GetUint16("port")
		dst, _ := cmd.Flags().GetInt32("destination")
		dir, _ := cmd.Flags().GetString("dir")

		graph, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		central := state.NewLocalGroup(n, port)
		central.Graph = graph
		central.Destination = state.VertexId(dst)
		central.GateTimeout, _ = cmd.Flags().GetDuration("gate-timeout")
		central.SyncTimeout, _ = cmd.Flags().GetDuration("sync-timeout")
		if err := state.CentralConfigValidator(&central); err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
		if err := writeYaml(filepath.Join(dir, "central.yaml"), central); err != nil {
			return err
		}
		for _, p := range central.Participants {
			path := filepath.Join(dir, fmt.Sprintf("node-%d.yaml", p.Index))
			if err := writeYaml(path, state.LocalCfg{Index: p.Index}); err != nil {
				return err
			}
		}
		fmt.Printf("Wrote configs for %d participants to %s, start each with: pbgp run -c central.yaml -n node-<i>.yaml\n", n, dir)
		return nil
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().IntP("participants", "p", state.MinParticipants, "Number of participants")
	newCmd.Flags().Uint16("port", uint16(state.DefaultPort), "Port of participant 1, the others use the following ports")
	newCmd.Flags().Int32P("destination", "d", 0, "Destination vertex")
	newCmd.Flags().String("dir", ".", "Output directory")
	newCmd.Flags().Duration("gate-timeout", state.GateTimeout, "How long a gate waits for its fragments")
	newCmd.Flags().Duration("sync-timeout", state.SyncTimeout, "How long a round waits for the other participants")
}
