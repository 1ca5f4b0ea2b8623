package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/najoast/physarum/topology"
)

func newReplayCmd(c *cli) *cobra.Command {
	var (
		eventsPath string
		batchSize  int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a JSON-lines event file through the optimizer and print the resulting topology",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := c.openSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			res, err := s.replay(ctx, eventsPath, cmd.InOrStdin(), batchSize)
			if err != nil {
				return err
			}
			stats, err := s.engine.Stats(ctx)
			if err != nil {
				return err
			}
			snap, err := s.engine.Snapshot(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, struct {
					Replay replayResult      `json:"replay"`
					Stats  topology.Stats    `json:"stats"`
					Graph  topology.Snapshot `json:"topology"`
				}{res, stats, snap})
			}
			fmt.Fprintf(out, "replayed %d events in %d cycles, %d edges pruned\n", res.Events, res.Cycles, res.Pruned)
			printStats(out, stats)
			printEdges(out, snap.Edges)
			return nil
		},
	}
	cmd.Flags().StringVarP(&eventsPath, "events", "e", "-", "JSON-lines event file, - for stdin")
	cmd.Flags().IntVarP(&batchSize, "batch", "b", 1000, "events per optimize cycle")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output machine-readable JSON")
	return cmd
}
