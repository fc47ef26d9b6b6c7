package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/site2rag/internal/app"
	"github.com/ternarybob/site2rag/internal/common"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	outputDir    = flag.String("output", "", "Output directory (overrides config)")
	maxPages     = flag.Int("max-pages", 0, "Page budget for this run (overrides config, -1 = unlimited)")
	maxDepth     = flag.Int("max-depth", 0, "Link depth limit (overrides config, -1 = unlimited)")
	flatLayout   = flag.Bool("flat", false, "Write flat <path-with-underscores>.md files instead of a directory tree")
	noEnrich     = flag.Bool("no-enrich", false, "Skip the enrichment phase")
	debugMode    = flag.Bool("debug", false, "Debug logging and extraction reports")
	testMode     = flag.Bool("test", false, "Test mode: quiet per-page output, verbose validation logging")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("site2rag version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	seed := flag.Arg(0)
	if seed == "" {
		fmt.Fprintln(os.Stderr, "usage: site2rag [flags] <seed-url>")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner
	var err error

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, serr := os.Stat("site2rag.toml"); serr == nil {
			configFiles = append(configFiles, "site2rag.toml")
		}
	}

	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	applyFlagOverrides(config)

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Str("seed", seed).
		Str("output_dir", config.Crawl.OutputDir).
		Int("max_pages", config.Crawl.MaxPages).
		Bool("enrich", config.Enrich.Enabled).
		Msg("Configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		if errors.Is(err, common.ErrAnotherInstance) {
			logger.Error().Err(err).Msg("State directory is locked")
			os.Exit(1)
		}
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	// Signal-based abort: first signal cancels everything in flight
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if config.Schedule.Enabled {
		err = application.RunScheduled(ctx, seed)
	} else {
		err = application.Run(ctx, seed)
	}

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		logger.Info().Msg("Aborted by signal")
	default:
		logger.Error().Err(err).Msg("Run failed")
		application.Close()
		os.Exit(1)
	}
}

// applyFlagOverrides layers command-line flags over the loaded config.
func applyFlagOverrides(cfg *common.Config) {
	if *outputDir != "" {
		cfg.Crawl.OutputDir = *outputDir
	}
	if *maxPages != 0 {
		cfg.Crawl.MaxPages = *maxPages
	}
	if *maxDepth != 0 {
		cfg.Crawl.MaxDepth = *maxDepth
	}
	if *flatLayout {
		cfg.Crawl.FlatLayout = true
	}
	if *noEnrich {
		cfg.Enrich.Enabled = false
	}
	if *debugMode {
		cfg.Debug = true
	}
	if *testMode {
		cfg.Test = true
	}
}
