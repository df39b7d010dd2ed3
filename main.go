// gentleman extracts the functions of Python source files, links them into a
// call graph and annotates each one with a language model.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/phobologic/gentleman/internal/artifact"
	"github.com/phobologic/gentleman/internal/config"
	"github.com/phobologic/gentleman/internal/discover"
	"github.com/phobologic/gentleman/internal/metrics"
	"github.com/phobologic/gentleman/internal/pipeline"
	"github.com/phobologic/gentleman/internal/prompt"
	"github.com/phobologic/gentleman/internal/server"
	"github.com/phobologic/gentleman/internal/toon"
	"github.com/phobologic/gentleman/internal/vocab"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the state shared by every subcommand.
type app struct {
	stdout, stderr io.Writer

	configPath string
	verbose    bool
	provider   string
	model      string
	token      string

	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Collectors

	builderOpts []pipeline.BuilderOption
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, opts ...pipeline.BuilderOption) error {
	a := &app{stdout: stdout, stderr: stderr, builderOpts: opts}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gentleman",
		Short: "Annotate Python functions with types, tags, descriptions and categories",
		Long: `gentleman statically extracts every function of a Python file, links
callers and callees, and asks a language model to fill in parameter types,
tags, a description, the return type and a category. Each answer is
validated before it is accepted.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config file")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	pf.StringVar(&a.provider, "provider", "", "model provider: hf, openai or gemini")
	pf.StringVar(&a.model, "model", "", "model name")
	pf.StringVar(&a.token, "token", "", "provider credential (defaults to the provider's environment variable)")

	root.AddCommand(a.extractCmd(), a.analyzeCmd(), a.serveCmd(), a.vocabCmd())
	return root
}

// setup loads .env and the config file, applies flag overrides and builds
// the logger and metrics registry.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	a.logger = newLogger(a.stderr, a.verbose)

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if p := strings.ToLower(a.provider); p != "" && p != cfg.Provider {
		cfg.Provider = p
		cfg.Token = ""
		cfg.ApplyEnv(func(key string) (string, bool) {
			if key == "GENTLEMAN_PROVIDER" {
				return "", false
			}
			return os.LookupEnv(key)
		})
	}
	if a.model != "" {
		cfg.Model = a.model
	}
	if a.token != "" {
		cfg.Token = a.token
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	a.logger.Debug("config loaded",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("workers", cfg.Workers),
	)
	return nil
}

func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level))
}

func (a *app) builder() (*pipeline.Builder, error) {
	opts := append([]pipeline.BuilderOption{
		pipeline.WithBuilderLogger(a.logger),
		pipeline.WithBuilderMetrics(a.metrics),
	}, a.builderOpts...)
	return pipeline.NewBuilder(a.cfg, opts...)
}

func (a *app) extractCmd() *cobra.Command {
	var format string
	var skipTests bool
	cmd := &cobra.Command{
		Use:   "extract PATH...",
		Short: "Extract functions and the call graph without a model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "toon" {
				return fmt.Errorf("unknown format %q", format)
			}
			paths, err := discover.Inputs(args, discover.Options{SkipTests: skipTests})
			if err != nil {
				return err
			}
			b, err := a.builder()
			if err != nil {
				return err
			}
			p := b.ExtractOnly()

			enc := json.NewEncoder(a.stdout)
			enc.SetIndent("", "  ")
			for _, path := range paths {
				fa, err := p.Extract(cmd.Context(), path)
				if err != nil {
					return err
				}
				if format == "toon" {
					fmt.Fprintln(a.stdout, toon.Encode(fa))
					continue
				}
				if err := enc.Encode(artifact.Assemble(path, fa.Functions)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or toon")
	cmd.Flags().BoolVar(&skipTests, "skip-tests", false, "skip test modules when walking directories")
	return cmd
}

func (a *app) analyzeCmd() *cobra.Command {
	var (
		workers   int
		outDir    string
		skipTests bool
	)
	cmd := &cobra.Command{
		Use:   "analyze PATH...",
		Short: "Extract and annotate every function of the given files or directories",
		Long: `analyze runs the full pipeline. Directories are walked recursively. Files
are processed concurrently and each one either produces a complete artifact
or fails as a whole. With --out, artifacts are written as
<name>_func_def.json (versioned, never overwritten); otherwise they are
printed to stdout as JSON.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("workers") {
				a.cfg.Workers = workers
			}
			paths, err := discover.Inputs(args, discover.Options{SkipTests: skipTests})
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no Python files found")
			}

			b, err := a.builder()
			if err != nil {
				return err
			}
			p, err := b.Build(cmd.Context(), "", "")
			if err != nil {
				return err
			}

			enc := json.NewEncoder(a.stdout)
			enc.SetIndent("", "  ")
			failed := 0
			for _, res := range p.AnalyzeBatch(cmd.Context(), paths) {
				if res.Err != nil {
					failed++
					fmt.Fprintf(a.stderr, "%s: %v\n", res.Path, res.Err)
					continue
				}
				if outDir == "" {
					if err := enc.Encode(res.Artifact); err != nil {
						return err
					}
					continue
				}
				written, err := artifact.WriteVersioned(outDir, res.Artifact)
				if err != nil {
					return err
				}
				a.logger.Info("artifact written", zap.String("source", res.Path), zap.String("path", written))
				fmt.Fprintln(a.stdout, written)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(paths))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "files analyzed concurrently (default from config)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "write artifacts into this directory")
	cmd.Flags().BoolVar(&skipTests, "skip-tests", false, "skip test modules when walking directories")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	var addr, uploadDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the upload and analyze endpoints over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			if uploadDir == "" {
				uploadDir = a.cfg.Server.UploadDir
			}
			if err := os.MkdirAll(uploadDir, 0o755); err != nil {
				return fmt.Errorf("creating upload dir: %w", err)
			}

			b, err := a.builder()
			if err != nil {
				return err
			}
			s, err := server.New(b, server.Options{
				UploadDir:   uploadDir,
				CacheSize:   a.cfg.Server.CacheSize,
				MaxFileSize: a.cfg.MaxFileSize,
				Gatherer:    a.registry,
				Logger:      a.logger.Named("server"),
			})
			if err != nil {
				return err
			}
			return s.Run(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&uploadDir, "upload-dir", "", "directory uploads are staged in (default from config)")
	return cmd
}

func (a *app) vocabCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vocab",
		Short: "Print the accepted type tokens and categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := prompt.Load(a.cfg.Prompts)
			if err != nil {
				return err
			}
			v := vocab.New(a.cfg.TypeDepth)
			fmt.Fprintf(a.stdout, "types[%d] (depth %d):\n", v.Len(), v.Depth())
			for _, tok := range v.Tokens() {
				fmt.Fprintf(a.stdout, "  %s\n", tok)
			}
			cats := bundle.Categories()
			fmt.Fprintf(a.stdout, "categories[%d]:\n", len(cats))
			for _, c := range cats {
				fmt.Fprintf(a.stdout, "  %s\n", c)
			}
			return nil
		},
	}
}
