package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/wudi/pdfengine/config"
	"github.com/wudi/pdfengine/convert"
	"github.com/wudi/pdfengine/observability"
	"github.com/wudi/pdfengine/ops"
	"github.com/wudi/pdfengine/pdferr"
	"github.com/wudi/pdfengine/progress"
	"github.com/wudi/pdfengine/validation"
	"github.com/wudi/pdfengine/worker"
)

var (
	cfgFile string
	envFile string
	outDir  string
	quiet   bool
	verbose bool
	lenient bool

	// set up by the persistent pre-run
	cfg           *config.Config
	logger        observability.Logger
	engine        *ops.Engine
	converter     *convert.Converter
	converterOpts []convert.Option
)

// pool runs one operation at a time; commands only ever submit one.
var pool = &worker.Pool{Workers: 1}

var rootCmd = &cobra.Command{
	Use:           "pdfengine",
	Short:         "Merge, split, rotate, watermark, compress and convert PDF files",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile, envFile)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Observability.LogLevel = "debug"
		}
		logger = cfg.Logger()
		gov := cfg.Governor(logger)

		engineOpts := []ops.Option{ops.WithGovernor(gov), ops.WithLogger(logger), ops.WithLenientLoading(lenient)}
		convertOpts := []convert.Option{convert.WithGovernor(gov), convert.WithLogger(logger), convert.WithLenientLoading(lenient)}
		for _, op := range validation.Operations() {
			engineOpts = append(engineOpts, ops.WithLimits(op, cfg.LimitsFor(op)))
			convertOpts = append(convertOpts, convert.WithLimits(op, cfg.LimitsFor(op)))
		}
		engine = ops.New(engineOpts...)
		converter = convert.New(convertOpts...)
		converterOpts = convertOpts
		pool.Logger = logger
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "YAML config file")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file read before PDFENGINE_* variables")
	flags.StringVarP(&outDir, "out", "o", ".", "directory for output files")
	flags.BoolVarP(&quiet, "quiet", "q", false, "hide the progress bar")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	flags.BoolVar(&lenient, "lenient", true, "repair damaged files instead of rejecting them")
}

// execute runs job on the worker pool, rendering its progress until the
// terminal message arrives. Ctrl-C cancels the job.
func execute[T any](cmd *cobra.Command, label string, job func(context.Context, progress.Func) (T, error)) (T, error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	bar := newBar(label)
	_, ch := pool.Submit(ctx, func(ctx context.Context, report progress.Func) (any, error) {
		return job(ctx, report)
	})
	v, err := worker.Await(ch, func(p int) {
		if bar != nil {
			_ = bar.Set(p)
		}
	})
	if bar != nil {
		if err == nil {
			_ = bar.Finish()
		} else {
			_ = bar.Exit()
		}
	}
	var zero T
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

func newBar(label string) *progressbar.ProgressBar {
	if quiet {
		return nil
	}
	return progressbar.NewOptions(100,
		progressbar.OptionSetDescription(label),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
	)
}

func readFiles(paths []string) ([]validation.File, error) {
	files := make([]validation.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		files = append(files, validation.File{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}

func readFile(path string) (validation.File, error) {
	files, err := readFiles([]string{path})
	if err != nil {
		return validation.File{}, err
	}
	return files[0], nil
}

func writeOutput(cmd *cobra.Command, name string, data []byte) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(outDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", path, validation.FormatSize(int64(len(data))))
	return nil
}

// warnSkipped prints a recorded per-item failure; n is 0-based.
func warnSkipped(cmd *cobra.Command, n int, err error) {
	fmt.Fprintf(cmd.ErrOrStderr(), "warning: item %d skipped: %v\n", n+1, err)
}

// reportError prints the user-facing category of err.
func reportError(w io.Writer, err error) {
	c := pdferr.Categorize(err)
	fmt.Fprintf(w, "%s: %s\n", c.Title, c.Message)
	for _, s := range c.Suggestions {
		fmt.Fprintf(w, "  - %s\n", s)
	}
}
