package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/sugawarayuuta/sonnet"

	"github.com/najoast/physarum/topology"
)

func printJSON(w io.Writer, v any) error {
	data, err := sonnet.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w, color.New(color.Bold, color.FgCyan).Sprint(title))
}

func printStats(w io.Writer, s topology.Stats) {
	printHeader(w, "Topology")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "nodes\t%d\n", s.NodeCount)
	fmt.Fprintf(tw, "edges\t%d\n", s.EdgeCount)
	fmt.Fprintf(tw, "avg latency\t%.2f ms\n", s.AvgLatency)
	fmt.Fprintf(tw, "avg cost\t%.4f\n", s.AvgCost)
	fmt.Fprintf(tw, "avg reliability\t%.3f\n", s.AvgReliability)
	tw.Flush()
}

func printEdges(w io.Writer, edges []topology.Edge) {
	printHeader(w, "Edges")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FROM\tTO\tSTRENGTH\tTRAFFIC\tLATENCY")
	for _, e := range edges {
		fmt.Fprintf(tw, "%s\t%s\t%.4f\t%.0f\t%.1f\n", e.From, e.To, e.Strength, e.Traffic, e.Latency)
	}
	tw.Flush()
}
