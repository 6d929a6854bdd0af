package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/encodeous/pbgp/core"
	"github.com/encodeous/pbgp/state"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
)

var simCmd = &cobra.Command{
	Use:   "sim [graph]",
	Short: "Run a whole group in this process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("participants")
		dst, _ := cmd.Flags().GetInt32("destination")
		dealer, _ := cmd.Flags().GetInt("dealer")
		timeout, _ := cmd.Flags().GetDuration("gate-timeout")
		selfCheck, _ := cmd.Flags().GetBool("self-check")
		verify, _ := cmd.Flags().GetBool("verify")
		workers, _ := cmd.Flags().GetInt("workers")
		trace, _ := cmd.Flags().GetBool("trace")
		verbose, _ := cmd.Flags().GetBool("verbose")

		central := state.NewLocalGroup(n, uint16(state.DefaultPort))
		central.Graph = args[0]
		central.Destination = state.VertexId(dst)
		central.Dealer = state.PeerIndex(dealer)
		central.GateTimeout = timeout
		central.SyncTimeout, _ = cmd.Flags().GetDuration("sync-timeout")
		central.SelfCheck = selfCheck
		if err := state.CentralConfigValidator(&central); err != nil {
			return err
		}

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		cfg := core.SimConfig{
			Central:  central,
			Local:    state.LocalCfg{Workers: workers},
			LogLevel: level,
		}
		var events chan interface{}
		printed := make(chan struct{})
		if trace {
			events = make(chan interface{}, 1024)
			cfg.Trace = events
			go func() {
				defer close(printed)
				for ev := range events {
					re := ev.(core.RouteEvent)
					fmt.Fprintf(os.Stderr, "round %d: %d -> %s (was %s)\n", re.Round, re.Vertex, re.To, re.From)
				}
			}()
		} else {
			close(printed)
		}

		start := time.Now()
		outs, err := core.Simulate(context.Background(), cfg)
		if events != nil {
			close(events)
		}
		<-printed
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%d participants agree after %d rounds in %s\n", n, outs[0].Rounds, time.Since(start))

		if verify {
			g, err := state.LoadGraph(args[0])
			if err != nil {
				return err
			}
			plain, err := core.RunPlain(context.Background(), g, central.Destination, state.VertexRange{}, slog.Default())
			if err != nil {
				return err
			}
			if diff := cmp.Diff(plain, outs[0]); diff != "" {
				return fmt.Errorf("private result differs from plaintext (-plain +private):\n%s", diff)
			}
			fmt.Fprintln(os.Stderr, "matches the plaintext computation")
		}
		fmt.Print(outs[0].Table)
		return nil
	},
	GroupID: "run",
}

var plainCmd = &cobra.Command{
	Use:   "plain [graph]",
	Short: "Compute the routes in plaintext",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dst, _ := cmd.Flags().GetInt32("destination")
		g, err := state.LoadGraph(args[0])
		if err != nil {
			return err
		}
		for _, skipped := range g.Skipped {
			slog.Warn("skipped malformed topology line", "err", skipped)
		}
		out, err := core.RunPlain(context.Background(), g, state.VertexId(dst), state.VertexRange{}, slog.Default())
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "converged after %d rounds\n", out.Rounds)
		fmt.Print(out.Table)
		return nil
	},
	GroupID: "run",
}

func init() {
	rootCmd.AddCommand(simCmd)
	rootCmd.AddCommand(plainCmd)

	addDebugFlags(simCmd)
	simCmd.Flags().IntP("participants", "p", state.MinParticipants, "Number of participants")
	simCmd.Flags().Int32P("destination", "d", 0, "Destination vertex")
	simCmd.Flags().Int("dealer", int(state.DefaultDealer), "Participant that deals the preference inputs")
	simCmd.Flags().Duration("gate-timeout", state.GateTimeout, "How long a gate waits for its fragments")
	simCmd.Flags().Duration("sync-timeout", state.SyncTimeout, "How long a round waits for the other participants")
	simCmd.Flags().Int("workers", 0, "Worker pool size per participant")
	simCmd.Flags().Bool("self-check", false, "Cross-check revealed comparisons against plaintext")
	simCmd.Flags().Bool("verify", true, "Compare the result with the plaintext computation")
	simCmd.Flags().Bool("trace", false, "Print route changes as they happen")

	plainCmd.Flags().Int32P("destination", "d", 0, "Destination vertex")
}
