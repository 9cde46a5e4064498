// Package main provides the evermem CLI.
//
// The CLI drives the memory service from the terminal: it runs the LOCOMO
// benchmark stages (ingest, search, judge) and administrative one-offs such
// as forgetting a user.
//
// # Basic Usage
//
// Ingest the benchmark conversations:
//
//	evermem eval add --dataset locomo10.json
//
// Answer the benchmark questions from memory:
//
//	evermem eval search --dataset locomo10.json --output search_results.json
//
// Grade the answers:
//
//	evermem eval judge --input search_results.json --output eval_metrics.json
//
// # Configuration
//
// Every command resolves configuration the same way: --config points at a
// JSON or YAML file (picked by extension), --env points at a dotenv file,
// and with neither flag the EVERMEM_* environment variables apply.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evermem/evermem-go/pkg/core"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags shared by every subcommand.
var (
	configPath string
	envPath    string
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached. It
// is separated from main to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "evermem",
		Short: "EverMem - long-term memory for conversational agents",
		Long: `EverMem extracts durable facts from conversations, reconciles them against
existing memories, and serves them back through vector retrieval.

The eval subcommands run the LOCOMO long-conversation benchmark end to end.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a JSON or YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", "", "Path to a dotenv file (used when --config is not set)")

	rootCmd.AddCommand(
		buildEvalCmd(),
		buildForgetCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

// loadConfig resolves the configuration from --config, --env, or the
// process environment, in that order.
func loadConfig() (*core.Config, error) {
	if configPath != "" {
		switch strings.ToLower(filepath.Ext(configPath)) {
		case ".json":
			return core.LoadConfigFromJSON(configPath)
		case ".yaml", ".yml":
			return core.LoadConfigFromYAML(configPath)
		default:
			return nil, fmt.Errorf("unsupported config extension %q, want .json, .yaml, or .yml", filepath.Ext(configPath))
		}
	}
	if envPath != "" {
		return core.LoadConfigFromEnvFile(envPath)
	}
	return core.LoadConfigFromEnv()
}

// openClient builds a client from the resolved configuration and returns
// the configuration alongside it.
func openClient() (*core.Client, *core.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	client, err := core.NewClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}

func buildForgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forget <user-id>",
		Short: "Delete every memory of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := strings.TrimSpace(args[0])
			if userID == "" {
				return fmt.Errorf("user id is required")
			}

			client, _, err := openClient()
			if err != nil {
				return err
			}
			defer client.Close()

			deleted, err := client.ForgetUser(cmd.Context(), userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s: %d memories deleted.\n", userID, deleted)
			return nil
		},
	}
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "evermem %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}
