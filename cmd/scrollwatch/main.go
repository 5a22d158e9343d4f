// Command scrollwatch tracks the active section of scrolling pages.
//
// Usage:
//
//	scrollwatch -config scrollwatch.yaml   # track pages from YAML config
//	scrollwatch -db pages.db               # track pages from SQLite, hot-reload
//	scrollwatch -url https://example.com   # quick single-page tracking (stdout sink)
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazelview/scrollwatch"
	"github.com/hazelview/scrollwatch/internal/browser"
	"github.com/hazelview/scrollwatch/internal/config"
	"github.com/hazelview/scrollwatch/internal/dbwatch"
	"github.com/hazelview/scrollwatch/internal/idgen"
)

func main() {
	configPath := flag.String("config", "", "path to scrollwatch.yaml config file")
	dbPath := flag.String("db", "", "path to SQLite database with a tracked_pages table")
	singleURL := flag.String("url", "", "track a single URL (stdout sink)")
	selector := flag.String("selector", "", "CSS selector for -url mode (default [data-trigger])")
	listen := flag.String("listen", "", "status server address (default :8490)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *dbPath, *singleURL, *selector, *listen); err != nil {
		logger.Error("scrollwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, dbPath, singleURL, selector, listen string) error {
	switch {
	case singleURL != "":
		return runSingle(ctx, logger, singleURL, selector, listen)
	case configPath != "":
		return runConfig(ctx, logger, configPath, listen)
	case dbPath != "":
		return runDB(ctx, logger, dbPath, listen)
	}
	fmt.Fprintln(os.Stderr, "usage: scrollwatch -config <file> | -db <file> | -url <url>")
	os.Exit(1)
	return nil
}

func runSingle(ctx context.Context, logger *slog.Logger, url, selector, listen string) error {
	cfg := scrollwatch.DefaultConfig()
	if selector != "" {
		cfg.Selector = selector
	}
	d := newDaemon(browser.Config{Logger: logger}, logger,
		scrollwatch.NewStdoutSink(nil))
	defer d.close()

	if err := d.start(ctx); err != nil {
		return err
	}
	if err := d.track(ctx, config.PageConfig{ID: idgen.New(), URL: url, Tracker: *cfg}); err != nil {
		return err
	}
	return d.serve(ctx, defaultListen(listen, ""))
}

func runConfig(ctx context.Context, logger *slog.Logger, path, listen string) error {
	cfg, err := scrollwatch.LoadConfigFile(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	d := newDaemon(browser.Config{
		RemoteURL: cfg.Browser.Remote,
		Stealth:   cfg.Browser.Stealth,
		Logger:    logger,
	}, logger, buildSinks(cfg.Sinks, logger)...)
	defer d.close()

	if err := d.start(ctx); err != nil {
		return err
	}
	for _, pc := range cfg.Pages {
		if err := d.track(ctx, pc); err != nil {
			logger.Error("scrollwatch: failed to track page", "url", pc.URL, "error", err)
		}
	}
	return d.serve(ctx, defaultListen(listen, cfg.Listen))
}

func runDB(ctx context.Context, logger *slog.Logger, path, listen string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, config.Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	d := newDaemon(browser.Config{Logger: logger}, logger,
		scrollwatch.NewStdoutSink(nil))
	defer d.close()

	if err := d.start(ctx); err != nil {
		return err
	}

	reload := func() error {
		pages, err := config.LoadPages(ctx, db)
		if err != nil {
			return err
		}
		d.reload(ctx, pages)
		return nil
	}
	if err := reload(); err != nil {
		return fmt.Errorf("initial load: %w", err)
	}

	w := dbwatch.New(db, dbwatch.Options{
		Interval: 200 * time.Millisecond,
		Debounce: 500 * time.Millisecond,
		Logger:   logger,
	})
	go w.OnChange(ctx, reload)

	return d.serve(ctx, defaultListen(listen, ""))
}

func buildSinks(cfgs []config.SinkConfig, logger *slog.Logger) []scrollwatch.Sink {
	var sinks []scrollwatch.Sink
	for _, sc := range cfgs {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, scrollwatch.NewStdoutSink(nil))
		case "webhook":
			sinks = append(sinks, scrollwatch.NewWebhookSink(sc.URL, logger))
		default:
			logger.Warn("scrollwatch: unknown sink type", "type", sc.Type)
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, scrollwatch.NewStdoutSink(nil))
	}
	return sinks
}

func defaultListen(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if configValue != "" {
		return configValue
	}
	return ":8490"
}

// serve runs the status server until ctx is cancelled.
func (d *daemon) serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: d.routes()}

	errCh := make(chan error, 1)
	go func() {
		d.logger.Info("scrollwatch: status server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return fmt.Errorf("status server: %w", err)
	}
}
