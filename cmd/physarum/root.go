package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/najoast/physarum/config"
	"github.com/najoast/physarum/logging"
)

// version can be overridden at build time via:
// go build -ldflags "-X main.version=1.2.3"
var version = "0.1.0"

// cli holds state shared by every subcommand.
type cli struct {
	configFile string
	logLevel   string

	loader *config.Loader
	cfg    *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{loader: config.NewLoader()}

	root := &cobra.Command{
		Use:          "physarum",
		Short:        "Physarum - adaptive event routing topology",
		Long:         "Routes events to agent actions over a graph that reinforces busy paths and lets idle ones decay.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig()
		},
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&c.configFile, "config", "c", "", "config file (default: search ./physarum.yaml, ./config, /etc/physarum)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override log.level")

	root.AddCommand(
		newVersionCmd(),
		newServeCmd(c),
		newReplayCmd(c),
		newRouteCmd(c),
		newWormholesCmd(c),
	)
	return root
}

func (c *cli) loadConfig() error {
	cfg, err := c.loader.Load(c.configFile)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = config.LogLevel(c.logLevel)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	c.cfg = cfg
	return nil
}

// logger builds the process logger. Offline commands log to stderr so
// their stdout stays machine readable.
func (c *cli) logger(offline bool) (*zap.Logger, error) {
	lc := c.cfg.Log
	if offline {
		lc.Output = "stderr"
	}
	return logging.New(lc)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.CyanString("physarum"), version)
		},
	}
}
