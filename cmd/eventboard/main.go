package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"eventboard/internal/capture"
	"eventboard/internal/catalog"
	"eventboard/internal/config"
	"eventboard/internal/feed"
	appLog "eventboard/internal/log"
	"eventboard/internal/state"
	"eventboard/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	now        string
	debug      bool
}

func main() {
	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	appLog.Info("eventboard starting", "version", "0.1.0-dev")

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	nowFn, err := buildClock(flags.now)
	if err != nil {
		appLog.Error("invalid -now value", err, "value", flags.now)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"refresh", conf.RefreshCron,
		"horizon_days", conf.HorizonDays,
		"state_dir", conf.StateDir,
		"sources", len(conf.Sources),
		"capture", conf.Capture.Enabled,
		"once", flags.once,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	// Stores and the reconciliation engine.
	store := state.Open(conf.StateDir)
	overrides := state.OpenOverrides(store)
	hidden := state.OpenVisibility(store)
	cat := catalog.New(overrides, hidden)

	// Feed acquisition.
	fetcher := feed.NewFetcher(conf.CacheDir)
	loader := feed.SourceLoader(fetcher, conf.HorizonDays, nowFn)
	refresher := feed.NewRefresher(loader, cat.IngestFeed)

	sources := func() []feed.Source {
		settings := state.LoadSettings(store)
		out := []feed.Source{{ID: "primary", Location: settings.File}}
		for _, src := range conf.Sources {
			if src.Location == "" {
				continue
			}
			id := src.ID
			if id == "" {
				id = src.Location
			}
			out = append(out, feed.Source{ID: id, Location: src.Location})
		}
		return out
	}

	previewPath := filepath.Join(conf.StateDir, "preview.png")

	server := web.NewServer(web.Deps{
		Config:      conf,
		Store:       store,
		Catalog:     cat,
		Overrides:   overrides,
		Hidden:      hidden,
		Refresher:   refresher,
		Sources:     sources,
		Now:         nowFn,
		PreviewPath: previewPath,
	})

	refreshCycle := func() {
		refresher.Refresh(ctx, sources())
		if conf.Capture.Enabled {
			runCapture(ctx, conf, previewPath)
		}
	}

	// Initial load so the board has data before the first tick.
	refreshCycle()

	if flags.once {
		appLog.Info("one-shot run complete")
		return
	}

	// Minute-aligned refresh schedule.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(conf.RefreshCron, refreshCycle); err != nil {
		appLog.Error("invalid refresh cron spec", err, "spec", conf.RefreshCron)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	httpServer := &http.Server{
		Addr:    conf.Listen,
		Handler: server.Handler(),
	}
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("HTTP server failed", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
	}
	appLog.Info("eventboard exiting")
}

func runCapture(ctx context.Context, conf *config.Config, previewPath string) {
	err := capture.DashboardPNG(ctx, capture.Options{
		URL:        "http://" + conf.Listen + "/",
		OutputPath: previewPath,
		Width:      conf.Capture.Width,
		Height:     conf.Capture.Height,
		Timeout:    time.Duration(conf.Capture.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		// Snapshot failures never take the daemon down.
		appLog.Error("snapshot capture failed", err)
		return
	}
	appLog.Info("snapshot captured", "path", previewPath)
}

// buildClock returns the daemon clock. With -now set, the clock starts
// at the given instant and advances with real elapsed time, so relative
// behavior (countdowns, reveals) still works under a simulated date.
func buildClock(value string) (func() time.Time, error) {
	if value == "" {
		return time.Now, nil
	}
	base, err := time.ParseInLocation("2006-01-02T15:04:05", value, time.Local)
	if err != nil {
		base, err = time.Parse(time.RFC3339, value)
		if err != nil {
			return nil, err
		}
	}
	started := time.Now()
	return func() time.Time {
		return base.Add(time.Since(started))
	}, nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/eventboard/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one refresh cycle and exit")
	flag.StringVar(&cfg.now, "now", "", "Simulated clock start (2006-01-02T15:04:05 or RFC3339)")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
