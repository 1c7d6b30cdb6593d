package commands

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/docrank/internal/config"
	"github.com/54b3r/docrank/internal/embedder"
	"github.com/54b3r/docrank/internal/extract"
	"github.com/54b3r/docrank/internal/logging"
	"github.com/54b3r/docrank/internal/metrics"
	"github.com/54b3r/docrank/internal/pipeline"
	"github.com/54b3r/docrank/internal/rank"
	"github.com/54b3r/docrank/internal/tracing"
)

// runFlags holds the flags shared by the root command and `docrank run`.
type runFlags struct {
	input       string
	output      string
	topK        int
	workers     int
	metricsFile string
}

// register attaches the run flags to cmd.
func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.input, "input", pipeline.DefaultInputDir, "Directory holding one sub-directory per collection (env: DOCRANK_INPUT_DIR)")
	cmd.Flags().StringVar(&f.output, "output", pipeline.DefaultOutputDir, "Directory receiving <collection>_output.json (env: DOCRANK_OUTPUT_DIR)")
	cmd.Flags().IntVar(&f.topK, "top-k", rank.DefaultTopK, "Ranked sections per collection (env: DOCRANK_TOP_K)")
	cmd.Flags().IntVar(&f.workers, "workers", 1, "Collections processed concurrently (env: DOCRANK_WORKERS)")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile at exit (env: METRICS_TEXTFILE)")
}

// options resolves flags over env vars: an explicitly set flag wins, then
// the env var (possibly filled from YAML), then the flag default.
func (f *runFlags) options(cmd *cobra.Command) (pipeline.Options, string) {
	str := func(name, env, val string) string {
		if cmd.Flags().Changed(name) {
			return val
		}
		return config.EnvOr(env, val)
	}
	num := func(name, env string, val int) int {
		if cmd.Flags().Changed(name) {
			return val
		}
		return config.EnvInt(env, val)
	}

	opts := pipeline.Options{
		InputDir:  str("input", "DOCRANK_INPUT_DIR", f.input),
		OutputDir: str("output", "DOCRANK_OUTPUT_DIR", f.output),
		TopK:      num("top-k", "DOCRANK_TOP_K", f.topK),
		Workers:   num("workers", "DOCRANK_WORKERS", f.workers),
	}
	return opts, str("metrics-file", "METRICS_TEXTFILE", f.metricsFile)
}

// NewRunCmd constructs the `docrank run` command.
func NewRunCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Rank every collection under the input directory",
		Long: `Process every collection under the input directory and write one report
per collection. Collections and documents that cannot be processed are logged
and skipped; the exit code is non-zero only when the run cannot start.

Environment variables:
  PDF_BACKEND              native (default) or mupdf
  DOCRANK_MIN_BLOCK_CHARS  Shortest block kept, in characters (default: 10)
  EMBEDDING_PROVIDER       ollama (default), openai, azure, tfidf
  EMBEDDING_MODEL          Embedding model (default: all-minilm for ollama)
  EMBEDDING_RPS            Max embedding requests per second (default: unlimited)
  VECTOR_STORE             memory (default) or qdrant
  QDRANT_HOST, QDRANT_PORT Qdrant gRPC endpoint when VECTOR_STORE=qdrant

Examples:
  docrank run
  docrank run --input ./challenge/inputs --output ./challenge/outputs
  EMBEDDING_PROVIDER=tfidf docrank run --workers 4`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

// runPipeline wires the backends selected by the environment and runs the
// batch once.
func runPipeline(cmd *cobra.Command, flags *runFlags) error {
	log := logging.New()
	ctx := logging.WithLogger(cmd.Context(), log)
	opts, metricsFile := flags.options(cmd)

	backend := config.EnvOr("PDF_BACKEND", extract.BackendNative)
	ex, err := extract.New(backend, config.EnvInt("DOCRANK_MIN_BLOCK_CHARS", extract.DefaultMinChars))
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	if err := embedder.Validate(log); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return fmt.Errorf("run: failed to initialise embedder: %w", err)
	}

	m := metrics.New()
	emb = embedder.NewTimed(emb, m.ObserveEmbed)

	if handler, flush, ok := tracing.Setup(); ok {
		emb = embedder.NewTraced(emb, handler)
		defer flush()
		log.Info("langfuse tracing enabled")
	}

	storeType := config.EnvOr("VECTOR_STORE", rank.StoreMemory)
	stores, err := rank.NewStoreFactory(storeType, qdrantConfig())
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if c, ok := stores.(io.Closer); ok {
		defer c.Close()
	}

	ranker, err := rank.NewRanker(emb, stores, rank.DefaultTitleChars)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	orch, err := pipeline.New(opts, ex, ranker, m, log)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	log.Info("docrank starting",
		slog.String("input_dir", opts.InputDir),
		slog.String("output_dir", opts.OutputDir),
		slog.String("pdf_backend", backend),
		slog.String("embedder", embedder.NameOf(emb)),
		slog.String("vector_store", storeType),
		slog.Int("workers", opts.Workers),
	)

	_, runErr := orch.Run(ctx)

	if err := m.WriteTextfile(metricsFile); err != nil {
		log.Warn("metrics snapshot not written", slog.Any("error", err))
	}
	return runErr
}

// qdrantConfig reads the Qdrant connection settings from the environment.
func qdrantConfig() *rank.QdrantConfig {
	return &rank.QdrantConfig{
		Host:   config.EnvOr("QDRANT_HOST", "localhost"),
		Port:   config.EnvInt("QDRANT_PORT", 6334),
		APIKey: config.EnvOr("QDRANT_API_KEY", ""),
		UseTLS: config.EnvBool("QDRANT_TLS", false),
	}
}
