package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/najoast/physarum/topology"
)

func newRouteCmd(c *cli) *cobra.Command {
	var (
		sourceType string
		eventType  string
		eventsPath string
		batchSize  int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Show the route chosen for an event, optionally after replaying traffic",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := c.openSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			if eventsPath != "" {
				if _, err := s.replay(ctx, eventsPath, cmd.InOrStdin(), batchSize); err != nil {
					return err
				}
			}

			ev := topology.Event{SourceType: sourceType, EventType: eventType}
			ex, err := s.engine.Explain(ctx, ev)
			if err != nil {
				return err
			}
			path := ex.Path

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, struct {
					Path []topology.NodeID `json:"path"`
				}{path})
			}
			if len(path) == 0 {
				fmt.Fprintf(out, "%s no route for %s\n", color.YellowString("!"), ev.OriginID())
				return nil
			}
			fmt.Fprintf(out, "%s %s -> %s\n", color.GreenString("route"), path[0], path[1])
			for _, cand := range ex.Candidates {
				fmt.Fprintf(out, "  %s strength=%.4f latency=%.1f reliability=%.3f score=%.6f\n",
					cand.Edge.To, cand.Edge.Strength, cand.Edge.Latency, cand.TargetReliability, cand.Score)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceType, "source", "", "event source type")
	cmd.Flags().StringVar(&eventType, "event", "", "event type")
	cmd.Flags().StringVarP(&eventsPath, "events", "e", "", "replay this JSON-lines file first, - for stdin")
	cmd.Flags().IntVarP(&batchSize, "batch", "b", 1000, "events per optimize cycle when replaying")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output machine-readable JSON")
	return cmd
}
