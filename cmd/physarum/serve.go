package main

import (
	"github.com/spf13/cobra"

	"github.com/najoast/physarum/bootstrap"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the router with its scheduler, event intake and monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := c.logger(false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			opts := []bootstrap.Option{bootstrap.WithLogger(logger)}
			if c.configFile != "" {
				opts = append(opts, bootstrap.WithConfigWatch(c.configFile, c.loader))
			}

			app, err := bootstrap.New(cmd.Context(), c.cfg, opts...)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}
}
