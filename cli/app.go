// Package cli provides the pdfworks command-line interface. Commands run the
// same operations as the HTTP API against local files.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joeychilson/pdfworks/config"
	"github.com/joeychilson/pdfworks/logger"
	"github.com/joeychilson/pdfworks/service"
)

// Version information set at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// App represents the CLI application.
type App struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "pdfworks",
		Short: "Split, merge, compress and convert PDF documents",
		Long: `pdfworks runs PDF operations on local files: split by page ranges or
fixed page counts, merge, compress, inspect, extract text, render pages to
images and build a PDF from images.

Page ranges use one-based numbers, e.g. "1-5,7,9-12".`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := app.root.PersistentFlags()
	flags.StringVarP(&app.configPath, "config", "c", "", "Path to a YAML configuration file")
	flags.StringVar(&app.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newSplitRangesCmd(),
		app.newSplitCmd(),
		app.newMergeCmd(),
		app.newCompressCmd(),
		app.newInfoCmd(),
		app.newTextCmd(),
		app.newImagesCmd(),
		app.newFromImagesCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments.
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "pdfworks version %s\n", Version)
			fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
		},
	}
}

// service builds a Service without cache or throttling. Logs go to stderr.
func (a *App) service() (*service.Service, error) {
	cfg := config.New()
	if a.configPath != "" {
		loaded, err := config.LoadConfig(a.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	level, err := logger.ParseLevel(a.logLevel)
	if err != nil {
		return nil, err
	}
	return service.New(cfg, nil, nil, logger.NewText(a.stderr, level)), nil
}
