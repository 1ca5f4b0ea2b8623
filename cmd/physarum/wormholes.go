package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/najoast/physarum/wormhole"
)

func newWormholesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wormholes",
		Short: "Inspect and manage routing declarations",
	}
	cmd.AddCommand(newWormholesListCmd(c), newWormholesImportCmd(c), newWormholesDeleteCmd(c))
	return cmd
}

func newWormholesListCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List declarations from the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closeStore, err := openStore(ctx, c.cfg.Wormholes, zap.NewNop())
			if err != nil {
				return err
			}
			defer closeStore()

			list, err := store.List(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, list)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFROM\tTO\tENABLED\tVALID")
			for _, w := range list {
				valid := "yes"
				if err := w.Validate(); err != nil {
					valid = err.Error()
				}
				d := w.Declaration()
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", w.ID, d.FromID(), d.ToID(), w.Enabled, valid)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output machine-readable JSON")
	return cmd
}

func newWormholesImportCmd(c *cli) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Copy declarations from a YAML file into the SQLite store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if dbPath == "" {
				dbPath = c.cfg.Wormholes.SQLitePath
			}

			list, err := wormhole.NewFileStore(args[0], zap.NewNop()).List(ctx)
			if err != nil {
				return err
			}
			store, err := wormhole.OpenSQLStore(ctx, dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			imported, skipped := 0, 0
			for _, w := range list {
				if err := store.Put(ctx, w); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "skip %q: %v\n", w.ID, err)
					skipped++
					continue
				}
				imported++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d wormholes into %s, skipped %d\n", imported, dbPath, skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database (default: wormholes.sqlite_path)")
	return cmd
}

func newWormholesDeleteCmd(c *cli) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Remove a declaration from the SQLite store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if dbPath == "" {
				dbPath = c.cfg.Wormholes.SQLitePath
			}
			store, err := wormhole.OpenSQLStore(ctx, dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database (default: wormholes.sqlite_path)")
	return cmd
}
