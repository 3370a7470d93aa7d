package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/pkg/config"
	"github.com/marmos91/dittobox/pkg/server"
)

const usage = `DittoBox - multi-user file storage and sharing

Usage:
  dittobox <command> [flags]

Commands:
  init     Write a default configuration file
  start    Start the server
  gc       Run one garbage collection pass and exit
  help     Show this message

Run 'dittobox <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:])
	case "start":
		err = runStart(os.Args[2:])
	case "gc":
		err = runGC(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runInit writes a commented default configuration.
func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing configuration file")
	path := fs.String("config", "", "Write to this path instead of the default location")
	_ = fs.Parse(args)

	target := *path
	if target == "" {
		target = config.GetDefaultConfigPath()
	}
	if err := config.InitConfigToPath(target, *force); err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", target)
	fmt.Println("Edit it, then run: dittobox start")
	return nil
}

// loadConfig loads configuration and applies the logging section.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runStart builds the registry, adapters and collector from configuration
// and serves until SIGINT or SIGTERM.
func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/dittobox/config.yaml)")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("DittoBox starting (blob=%s, metadata=%s)", cfg.Blob.Type, cfg.Metadata.Type)

	// ========================================================================
	// Step 1: Metrics and registry
	// ========================================================================

	m := config.InitializeMetrics(cfg)
	if cfg.Metrics.Enabled {
		logger.Info("Metrics enabled at /metrics")
	}

	reg, err := config.InitializeRegistry(ctx, cfg, m)
	if err != nil {
		return err
	}

	srv := server.New(reg, cfg.Server.ShutdownTimeout)

	// ========================================================================
	// Step 2: Background tasks and adapters
	// ========================================================================

	collector, err := config.CreateCollector(cfg, reg, m)
	if err != nil {
		_ = reg.Close()
		return err
	}
	if collector != nil {
		if err := srv.AddTask(collector); err != nil {
			_ = reg.Close()
			return err
		}
		logger.Info("Garbage collection every %v (grace period %v)", cfg.GC.Interval, cfg.GC.GracePeriod)
	}

	adapters, err := config.CreateAdapters(cfg, m.HTTP)
	if err != nil {
		_ = reg.Close()
		return err
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			_ = reg.Close()
			return err
		}
	}

	// ========================================================================
	// Step 3: Serve until signalled
	// ========================================================================

	logger.Info("Server is running. Press Ctrl+C to stop.")

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runGC performs a single collection pass against the configured stores.
func runGC(args []string) error {
	fs := flag.NewFlagSet("gc", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	dryRun := fs.Bool("dry-run", false, "Report orphaned blobs without deleting them")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := config.InitializeMetrics(&config.Config{})
	reg, err := config.InitializeRegistry(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer func() { _ = reg.Close() }()

	cfg.GC.Enabled = true
	cfg.GC.DryRun = cfg.GC.DryRun || *dryRun
	collector, err := config.CreateCollector(cfg, reg, m)
	if err != nil {
		return err
	}

	stats, err := collector.RunNow(ctx)
	if err != nil {
		return fmt.Errorf("garbage collection failed: %w", err)
	}

	fmt.Printf("Scanned %d blob(s): %d referenced, %d orphaned, %d too young\n",
		stats.ExistingCount, stats.ReferencedCount, stats.OrphanedCount, stats.YoungCount)
	if cfg.GC.DryRun {
		fmt.Println("Dry run: nothing deleted")
	} else {
		fmt.Printf("Deleted %d blob(s), %d failed, swept %d expired share token(s)\n",
			stats.DeletedCount, stats.FailedCount, stats.ExpiredTokens)
	}
	return nil
}
