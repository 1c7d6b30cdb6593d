package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/54b3r/docrank/internal/config"
	"github.com/54b3r/docrank/internal/embedder"
	"github.com/54b3r/docrank/internal/logging"
	"github.com/54b3r/docrank/internal/pipeline"
	"github.com/54b3r/docrank/internal/preflight"
	"github.com/54b3r/docrank/internal/rank"
)

// NewCheckCmd constructs the `docrank check` command, which probes the
// input tree and the configured backends without writing any output.
func NewCheckCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the input tree and backend connectivity",
		Long: `Probe everything a run depends on and print one line per check:
the input directory (descriptors parse, listed PDFs exist), the embedding
backend (a short probe text is embedded) and, when VECTOR_STORE=qdrant,
the Qdrant health endpoint.

Exits non-zero if any check fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("input") {
				input = config.EnvOr("DOCRANK_INPUT_DIR", input)
			}

			pingers := []preflight.Pinger{preflight.NewInputPinger(input)}

			if err := embedder.Validate(logging.New()); err != nil {
				return fmt.Errorf("check: %w", err)
			}
			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("check: failed to initialise embedder: %w", err)
			}
			pingers = append(pingers, preflight.NewEmbedderPinger(emb, embedder.NameOf(emb)))

			storeType := config.EnvOr("VECTOR_STORE", rank.StoreMemory)
			if storeType == rank.StoreQdrant {
				stores, err := rank.NewQdrantFactory(qdrantConfig())
				if err != nil {
					return fmt.Errorf("check: %w", err)
				}
				defer stores.Close()
				pingers = append(pingers, preflight.NewStorePinger(storeType, stores.Ping))
			}

			results := preflight.Run(cmd.Context(), pingers...)
			printResults(cmd.OutOrStdout(), results)

			if n := preflight.Failed(results); n > 0 {
				return fmt.Errorf("check: %d of %d checks failed", n, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", pipeline.DefaultInputDir, "Directory holding one sub-directory per collection (env: DOCRANK_INPUT_DIR)")
	return cmd
}

// printResults writes one aligned line per probe.
func printResults(w io.Writer, results []preflight.Result) {
	for _, r := range results {
		status := "ok"
		detail := r.Detail
		if !r.OK() {
			status = "FAIL"
			detail = r.Err.Error()
		}
		fmt.Fprintf(w, "%-4s  %-40s  %6dms  %s\n", status, r.Name, r.Elapsed.Milliseconds(), detail)
	}
}
