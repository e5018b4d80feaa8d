// ABOUTME: Entry point for coven-reactions, the reaction engine server and CLI
// ABOUTME: Builds the cobra command tree and resolves the config file location

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2389/coven-reactions/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const banner = `
                                                           _   _
  ___ _____   _____ _ __        _ __ ___  __ _  ___| |_(_) ___  _ __  ___
 / __/ _ \ \ / / _ \ '_ \ _____| '__/ _ \/ _' |/ __| __| |/ _ \| '_ \/ __|
| (_| (_) \ V /  __/ | | |_____| | |  __/ (_| | (__| |_| | (_) | | | \__ \
 \___\___/ \_/ \___|_| |_|     |_|  \___|\__,_|\___|\__|_|\___/|_| |_|___/
`

// rootOptions holds global flags for all commands.
type rootOptions struct {
	configPath string
}

// getConfigPath returns the default path to the config file.
// Priority: COVEN_REACTIONS_CONFIG env var > XDG_CONFIG_HOME/coven/reactions.yaml > ~/.config/coven/reactions.yaml
func getConfigPath() string {
	if envPath := os.Getenv("COVEN_REACTIONS_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "reactions.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "reactions.yaml")
}

// getDataPath returns the path to the coven data directory.
// Priority: XDG_DATA_HOME/coven > ~/.local/share/coven
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "coven")
}

// loadConfig loads the file named by the --config flag.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newRootCommand creates the root command and its subcommands.
func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "coven-reactions",
		Short:         "Reactions for any entity, over SQLite and HTTP",
		Long:          "coven-reactions stores per-user reactions (like, love, ...) on arbitrary entities\nand serves them over a JSON API.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", getConfigPath(), "path to config file (.yaml or .toml)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newInitCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))
	cmd.AddCommand(newCountsCommand(opts))
	cmd.AddCommand(newHealthCommand(opts))

	return cmd
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
