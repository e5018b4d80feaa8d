// ABOUTME: serve command: runs the reactions HTTP gateway until interrupted
// ABOUTME: Prints the startup banner, installs tracing, then blocks in gateway.Run

package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-reactions/internal/gateway"
	"github.com/2389/coven-reactions/internal/tracing"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the reactions HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			cyan := color.New(color.FgCyan)
			gray := color.New(color.FgHiBlack)
			green := color.New(color.FgGreen)
			yellow := color.New(color.FgYellow)

			cyan.Fprint(out, banner)
			gray.Fprintf(out, "    version: %s\n\n", version)

			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			logger := setupLogger(cfg.Logging)

			mode := cfg.Reactions.EngineConfig().Mode()

			green.Fprint(out, "    ▶ ")
			fmt.Fprintf(out, "Config:    %s\n", root.configPath)
			green.Fprint(out, "    ▶ ")
			fmt.Fprintf(out, "HTTP:      %s\n", cfg.Server.HTTPAddr)
			green.Fprint(out, "    ▶ ")
			fmt.Fprintf(out, "Database:  %s ", cfg.Database.Path)
			gray.Fprintf(out, "(%s, table %s)\n", cfg.Database.Driver, cfg.Reactions.TableName())
			green.Fprint(out, "    ▶ ")
			fmt.Fprintf(out, "Mode:      ")
			cyan.Fprint(out, mode)
			if len(cfg.Reactions.Types) > 0 {
				gray.Fprintf(out, " %v", cfg.Reactions.Types)
			}
			fmt.Fprintln(out)
			if cfg.Tracing.Endpoint != "" {
				green.Fprint(out, "    ▶ ")
				fmt.Fprintf(out, "Tracing:   ")
				yellow.Fprintln(out, cfg.Tracing.Endpoint)
			}
			fmt.Fprintln(out)

			shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
				Endpoint:    cfg.Tracing.Endpoint,
				ServiceName: cfg.Tracing.ServiceName,
				Version:     version,
			})
			if err != nil {
				return fmt.Errorf("setting up tracing: %w", err)
			}
			defer func() {
				if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("flushing traces", "error", err)
				}
			}()

			logger.Info("starting coven-reactions",
				"config", root.configPath,
				"http_addr", cfg.Server.HTTPAddr,
				"mode", string(mode),
			)

			gw, err := gateway.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("creating gateway: %w", err)
			}

			return gw.Run(ctx)
		},
	}
}
