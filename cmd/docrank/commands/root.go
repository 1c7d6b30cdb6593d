// Package commands defines the Cobra CLI commands for the docrank binary.
package commands

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/54b3r/docrank/internal/audit"
	"github.com/54b3r/docrank/internal/config"
	"github.com/54b3r/docrank/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// NewRootCmd constructs the root command. Invoked without a subcommand it
// behaves like `docrank run`.
func NewRootCmd() *cobra.Command {
	flags := &runFlags{}

	root := &cobra.Command{
		Use:   "docrank",
		Short: "Rank PDF sections by relevance to a persona's task",
		Long: `docrank reads every collection under the input directory, extracts the
text blocks of its PDFs, ranks them against the collection's persona and
job-to-be-done, and writes <collection>_output.json to the output directory.

Input layout:
  inputs/<collection>/input.json
  inputs/<collection>/PDFs/<filename>.pdf

Backends are selected with PDF_BACKEND, EMBEDDING_PROVIDER and VECTOR_STORE,
or a YAML config file (~/.docrank/config.yaml).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env never overrides variables already in the environment.
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			audit.LogCommandStart(log, cmd.Name(), path)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, flags)
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.docrank/config.yaml)")
	flags.register(root)

	root.AddCommand(
		NewRunCmd(),
		NewCheckCmd(),
		NewVersionCmd(),
	)

	return root
}
