package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/briefops/briefer/config"
	"github.com/briefops/briefer/internal/brief"
	"github.com/briefops/briefer/internal/fetch"
	"github.com/briefops/briefer/internal/llm"
	"github.com/briefops/briefer/internal/search"
	"github.com/briefops/briefer/internal/telemetry"
)

// generateCMD runs one research pipeline from the terminal without the
// HTTP server or database. Handy for smoke tests and scripting.
func generateCMD() *cobra.Command {
	var cfgPath string
	var depth string
	var additional string
	var pretty bool

	var generate = &cobra.Command{
		Use:   "generate [topic]",
		Short: "Generate one research brief and print it as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			topic := strings.Join(args, " ")

			provider, err := llm.NewProvider(cfg.LLM)
			if err != nil {
				return err
			}
			invoker := llm.NewInvoker(provider, cfg.LLM.Routing)
			searcher, err := search.NewSearcher(cfg.Search)
			if err != nil {
				return err
			}
			var upgrader brief.Upgrader
			if cfg.Fetch.Enabled {
				upgrader = fetch.Fetcher{Timeout: cfg.Fetch.Timeout, MaxChars: cfg.Fetch.MaxChars}
			}
			tele := telemetry.New(cfg.Telemetry)
			engine := brief.NewEngine(cfg, invoker, searcher, upgrader, tele)

			ctx := context.Background()
			if cfg.General.MaxRunTime > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.General.MaxRunTime)
				defer cancel()
			}

			state := brief.NewPipelineState(topic, "cli", brief.ParseDepth(depth), false, additional, nil)
			result := engine.Run(ctx, state)

			enc := json.NewEncoder(os.Stdout)
			if pretty {
				enc.SetIndent("", "  ")
			}
			if err := enc.Encode(result); err != nil {
				return fmt.Errorf("encode brief: %w", err)
			}
			return nil
		},
	}
	generate.Flags().StringVar(&depth, "depth", "moderate", "research depth: shallow, moderate or deep")
	generate.Flags().StringVar(&additional, "context", "", "additional context for the run")
	generate.Flags().BoolVar(&pretty, "pretty", false, "indent JSON output")
	generate.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return generate
}
