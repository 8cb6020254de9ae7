package main

import (
	"github.com/spf13/cobra"

	"github.com/briefops/briefer/config"
	srv "github.com/briefops/briefer/internal/server"
)

func serveCMD() *cobra.Command {
	var serveAddr string
	var cfgPath string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			return srv.Run(cfg, serveAddr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return serve
}
