// gc-sentinel parses JVM garbage collector logs of any supported dialect,
// keeps their running statistics up to date as the logs change and pushes
// the resulting reports to notification channels.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gc-sentinel/gc-sentinel/internal/config"
	"github.com/gc-sentinel/gc-sentinel/internal/engine"
	"github.com/gc-sentinel/gc-sentinel/internal/logging"
	"github.com/gc-sentinel/gc-sentinel/internal/notifier"
	"github.com/gc-sentinel/gc-sentinel/internal/reader"
	"github.com/gc-sentinel/gc-sentinel/internal/scheduler"
	"github.com/gc-sentinel/gc-sentinel/internal/server"
	"github.com/gc-sentinel/gc-sentinel/internal/store"
)

var (
	// Version information (set at build time via -ldflags)
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to configuration file (.yaml or .toml)")
	runOnce := flag.Bool("once", false, "Parse every resource once, print the reports and exit")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [resource...]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("gc-sentinel %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Load configuration
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fatal("Failed to load configuration", err)
		}
	}

	// Positional resources replace the configured inputs
	if flag.NArg() > 0 {
		cfg.Inputs.Resources = flag.Args()
		cfg.Inputs.Dir = ""
	}

	if err := cfg.Validate(); err != nil {
		fatal("Invalid configuration", err)
	}

	logger, logCloser, err := logging.Setup(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		fatal("Failed to set up logging", err)
	}
	defer logCloser.Close()

	logger.Info("gc-sentinel starting", "version", version)

	resources, err := collectResources(&cfg.Inputs)
	if err != nil {
		fatal("Failed to list inputs", err)
	}
	if len(resources) == 0 {
		fatal("No inputs", errors.New("no gc log matched the configured inputs"))
	}
	logger.Info("inputs selected", "count", len(resources))

	eng := engine.New(cfg, logger)

	notify, err := notifier.New(&cfg.Notifier, os.Stdout)
	if err != nil {
		fatal("Failed to initialize notifier", err)
	}
	logger.Info("notifier initialized", "notifier", notify.Name())

	fetchTimeout, _ := cfg.Parse.FetchTimeoutParsed()
	minInterval, _ := cfg.Watch.MinIntervalParsed()
	opts := scheduler.Options{
		MinInterval: minInterval,
		Client:      &http.Client{Timeout: fetchTimeout},
		Logger:      logger,
	}

	// Run-once mode: no history, no server, no watching
	if *runOnce {
		sched := scheduler.New(eng, notify, resources, opts)
		ctx, cancel := context.WithTimeout(context.Background(), scheduler.DefaultAnalysisTimeout)
		defer cancel()
		if err := sched.RunNow(ctx); err != nil {
			logger.Error("parse failed", "error", err)
			logCloser.Close()
			os.Exit(1)
		}
		logger.Info("parse complete, exiting")
		return
	}

	// Initialize summary history
	var history server.History
	st, err := store.Open(&cfg.Store, logger)
	if err != nil {
		fatal("Failed to open history store", err)
	}
	if st != nil {
		defer st.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := st.Migrate(ctx); err != nil {
			cancel()
			fatal("Failed to prepare history store", err)
		}
		cancel()
		opts.Recorder = st
		history = st
		logger.Info("history store ready", "driver", cfg.Store.Driver)
	}

	sched := scheduler.New(eng, notify, resources, opts)

	var srv *server.Server
	if cfg.Server.Enabled {
		srv = server.New(&cfg.Server, sched, history, logger)
		if err := srv.Start(); err != nil {
			fatal("Failed to start http server", err)
		}
	}

	if cfg.Watch.Enabled {
		if err := sched.Schedule(cfg.Watch.Cron); err != nil {
			fatal("Failed to schedule change checks", err)
		}
		if cfg.Watch.Notify {
			if err := sched.Watch(); err != nil {
				fatal("Failed to watch inputs", err)
			}
		}
	}
	sched.Start()

	// Initial parse of every input
	go func() {
		if err := sched.RunNow(context.Background()); err != nil {
			logger.Warn("initial parse incomplete", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received signal, shutting down", "signal", sig.String())

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	schedCtx := sched.Stop()
	select {
	case <-schedCtx.Done():
	case <-shutdownCtx.Done():
	}

	if srv != nil {
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("error stopping http server", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// collectResources returns the explicit resources followed by the matching
// files of the input directory.
func collectResources(in *config.InputsConfig) ([]string, error) {
	resources := append([]string(nil), in.Resources...)
	if in.Dir != "" {
		files, err := reader.Expand(in.Dir, in.Include, in.Exclude)
		if err != nil {
			return nil, err
		}
		resources = append(resources, files...)
	}
	return resources, nil
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
