// Package main implements the vectorlayer command: it imports zipped vector
// datasets into layer tables and queries, edits and drops them.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/arkilian/vectorlayer/internal/app"
	"github.com/arkilian/vectorlayer/internal/config"
	"github.com/arkilian/vectorlayer/internal/server"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	ctx, stop := server.SignalContext(context.Background())
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// globals are the flags accepted before the command name.
type globals struct {
	configFile  string
	dataDir     string
	logLevel    string
	transformer string
	showVersion bool
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vectorlayer", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var g globals
	fs.StringVar(&g.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	fs.StringVar(&g.dataDir, "data-dir", "", "Base directory for all data files")
	fs.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&g.transformer, "transformer", "", "Coordinate transformer: proj, mercator")
	fs.BoolVar(&g.showVersion, "version", false, "Show version information")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "vectorlayer - import and query vector layers\n\n")
		fmt.Fprintf(stderr, "Usage: vectorlayer [options] <command> [command options]\n\n")
		fmt.Fprintf(stderr, "Commands:\n")
		for _, c := range commands {
			fmt.Fprintf(stderr, "  %-8s %s\n", c.name, c.summary)
		}
		fmt.Fprintf(stderr, "\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  vectorlayer import -layer roads roads.zip\n")
		fmt.Fprintf(stderr, "  vectorlayer query -layer roads -geom -like main -limit 10\n")
		fmt.Fprintf(stderr, "  vectorlayer --config /etc/vectorlayer/config.yaml layers\n")
		fmt.Fprintf(stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(stderr, "  VECTORLAYER_DATA_DIR            Base directory for data files\n")
		fmt.Fprintf(stderr, "  VECTORLAYER_IMPORT_TARGET_SRID  Default target CRS of imports\n")
		fmt.Fprintf(stderr, "  VECTORLAYER_IMPORT_ENCODING     Default legacy encoding hint\n")
		fmt.Fprintf(stderr, "  VECTORLAYER_STORAGE_TYPE        Staging storage type (local, s3)\n")
		fmt.Fprintf(stderr, "  VECTORLAYER_LOG_LEVEL           Log level\n")
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	if g.showVersion {
		fmt.Fprintf(stdout, "vectorlayer version %s (commit: %s)\n", version, commit)
		return 0
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	cmd, ok := lookup(fs.Arg(0))
	if !ok {
		fmt.Fprintf(stderr, "vectorlayer: unknown command %q\n", fs.Arg(0))
		fs.Usage()
		return 2
	}

	cfg, err := loadConfig(g)
	if err != nil {
		fmt.Fprintf(stderr, "vectorlayer: failed to load configuration: %v\n", err)
		return 1
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "vectorlayer: %v\n", err)
		return 1
	}
	defer a.Close()

	if cfg.Metrics.Addr != "" {
		if h := a.MetricsHandler(); h != nil {
			ms := server.NewMetricsServer(cfg.Metrics.Addr, h, a.Logger())
			if err := ms.Start(); err != nil {
				fmt.Fprintf(stderr, "vectorlayer: %v\n", err)
				return 1
			}
			defer ms.Close()
		}
	}

	env := &env{app: a, stdin: stdin, stdout: stdout, stderr: stderr}
	return cmd.run(ctx, env, fs.Args()[1:])
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(g globals) (*config.Config, error) {
	var cfg *config.Config
	var err error

	// Start with defaults or load from file
	if g.configFile != "" {
		cfg, err = config.LoadFromFile(g.configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	// Command line flags win
	if g.dataDir != "" {
		cfg.DataDir = g.dataDir
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.transformer != "" {
		cfg.Import.Transformer = g.transformer
	}
	return cfg, nil
}
