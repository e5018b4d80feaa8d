// ABOUTME: Operator subcommands: init, token, counts and health
// ABOUTME: Each loads the shared config and talks to the store or a running server

package main

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/2389/coven-reactions/internal/auth"
	"github.com/2389/coven-reactions/internal/config"
	"github.com/2389/coven-reactions/internal/gateway"
	"github.com/2389/coven-reactions/internal/reactions"
)

type initOptions struct {
	force   bool
	multi   bool
	types   []string
	dbPath  string
	address string
}

func newInitCommand(root *rootOptions) *cobra.Command {
	opts := &initOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a new config file with a generated JWT secret",
		Long: "Write a new config file at --config. The format follows the file extension\n" +
			"(.toml for TOML, anything else YAML). An existing file is left alone unless --force is given.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.OutOrStdout(), root.configPath, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "overwrite an existing config file")
	cmd.Flags().BoolVar(&opts.multi, "multi", false, "allow several reaction kinds per user on one entity")
	cmd.Flags().StringSliceVar(&opts.types, "types", nil, "allowed reaction kinds, comma separated (empty allows any)")
	cmd.Flags().StringVar(&opts.dbPath, "db", filepath.Join(getDataPath(), "reactions.db"), "SQLite database path")
	cmd.Flags().StringVar(&opts.address, "http-addr", "127.0.0.1:8080", "HTTP listen address")

	return cmd
}

// generateSecret returns a random secret comfortably above auth.MinSecretLength.
func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

// initialConfig builds the config written by init. Durations are carried in
// their raw form because that is what the file formats hold.
func initialConfig(opts *initOptions, secret string) *config.Config {
	cfg := config.Default()
	cfg.Server.HTTPAddr = opts.address
	cfg.Server.ShutdownTimeoutRaw = cfg.Server.ShutdownTimeout.String()
	cfg.Database.Path = opts.dbPath
	cfg.Database.BusyTimeoutRaw = cfg.Database.BusyTimeout.String()
	cfg.Reactions.AllowMultiple = opts.multi
	cfg.Reactions.Types = opts.types
	cfg.Auth.JWTSecret = secret
	cfg.Auth.TokenTTLRaw = cfg.Auth.TokenTTL.String()
	cfg.Idempotency.TTLRaw = cfg.Idempotency.TTL.String()
	return cfg
}

func encodeConfig(path string, cfg *config.Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# coven-reactions configuration\n# Generated by coven-reactions init\n\n")

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, fmt.Errorf("encoding TOML: %w", err)
		}
		return buf.Bytes(), nil
	}

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encoding YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding YAML: %w", err)
	}
	return buf.Bytes(), nil
}

func runInit(out io.Writer, configPath string, opts *initOptions) error {
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	if _, err := os.Stat(configPath); err == nil && !opts.force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", configPath)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config file: %w", err)
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	content, err := encodeConfig(configPath, initialConfig(opts, secret))
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if dir := filepath.Dir(opts.dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Read it back so a broken file never survives init.
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("verifying written config: %w", err)
	}

	green.Fprintf(out, "  ✓ Created config: %s\n", configPath)
	fmt.Fprintf(out, "    Database: %s\n", cfg.Database.Path)
	fmt.Fprintf(out, "    Mode:     ")
	cyan.Fprintln(out, cfg.Reactions.EngineConfig().Mode())
	yellow.Fprintln(out, "  Keep the file private: it holds the JWT signing secret.")
	return nil
}

type tokenOptions struct {
	user string
	ttl  time.Duration
}

func newTokenCommand(root *rootOptions) *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
			if err != nil {
				return fmt.Errorf("creating verifier: %w", err)
			}

			ttl := opts.ttl
			if ttl == 0 {
				ttl = cfg.Auth.TokenTTL
			}

			token, err := verifier.Generate(strings.TrimSpace(opts.user), ttl)
			if err != nil {
				return fmt.Errorf("generating token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.user, "user", "u", "", "user id placed in the sub claim (required)")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

type countsOptions struct {
	json bool
}

func newCountsCommand(root *rootOptions) *cobra.Command {
	opts := &countsOptions{}

	cmd := &cobra.Command{
		Use:   "counts <type> <id>",
		Short: "Print reaction counts for one entity straight from the database",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			logger := setupLogger(config.LoggingConfig{Level: "warn", Format: cfg.Logging.Format})

			st, err := gateway.OpenStore(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			engine, err := reactions.New(st, cfg.Reactions.EngineConfig(), reactions.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("creating engine: %w", err)
			}

			ref := reactions.Ref{Type: args[0], ID: args[1]}
			counts, err := engine.Counts(cmd.Context(), ref)
			if err != nil {
				return fmt.Errorf("counting reactions: %w", err)
			}

			return printCounts(cmd.OutOrStdout(), ref, counts, opts.json)
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false, "print the same JSON body the HTTP API returns")

	return cmd
}

func printCounts(out io.Writer, ref reactions.Ref, counts map[string]int, asJSON bool) error {
	total := 0
	for _, n := range counts {
		total += n
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(gateway.CountsResponse{
			Type:   ref.Type,
			ID:     ref.ID,
			Counts: counts,
			Total:  total,
		})
	}

	if total == 0 {
		fmt.Fprintf(out, "%s/%s has no reactions\n", ref.Type, ref.ID)
		return nil
	}

	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	gray := color.New(color.FgHiBlack)
	for _, k := range kinds {
		fmt.Fprintf(out, "%-12s %d\n", k, counts[k])
	}
	gray.Fprintf(out, "%-12s %d\n", "total", total)
	return nil
}

func newHealthCommand(root *rootOptions) *cobra.Command {
	var ready bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that a running server is healthy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			path := "/health"
			if ready {
				path = "/health/ready"
			}

			url := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, path)
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
			if err != nil {
				return fmt.Errorf("creating request: %w", err)
			}

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			}

			fmt.Fprintln(cmd.OutOrStdout(), "healthy")
			return nil
		},
	}

	cmd.Flags().BoolVar(&ready, "ready", false, "also check the database via /health/ready")

	return cmd
}
