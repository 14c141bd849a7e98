// Package app wires the two pipelines together: ingress publishes
// trigger events onto the bus, the watcher and reconciler consume them.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"sitewatch/internal/dispatch"
	"sitewatch/internal/fetch"
	"sitewatch/internal/logging"
	"sitewatch/internal/notion"
	"sitewatch/internal/reconciler"
	"sitewatch/internal/server"
	"sitewatch/internal/snapshot"
	"sitewatch/internal/watcher"
)

// Application owns the wired components and their lifecycle.
type Application struct {
	cfg    *Config
	logger logging.Logger

	bus     *dispatch.Bus
	store   *snapshot.SQLiteStore
	watcher *watcher.Watcher
	server  *server.Server

	webClient fetch.WebClient
	rendered  fetch.WebClient
}

// New builds and wires every component from cfg.
func New(cfg *Config, logger logging.Logger) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}

	store, err := snapshot.NewSQLiteStore(cfg.Snapshot, logger.With(logging.Field{Key: "component", Value: "snapshot"}))
	if err != nil {
		return nil, fmt.Errorf("snapshot store: %w", err)
	}

	webClient, err := fetch.New("nethttp", cfg.Fetch, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("webclient: %w", err)
	}

	// The headless backend is only constructed when a target needs it.
	var rendered fetch.WebClient
	for _, t := range cfg.Watcher.Targets {
		if t.Render {
			rendered, err = fetch.New("chromedp", cfg.Fetch, logger)
			if err != nil {
				store.Close()
				return nil, fmt.Errorf("rendered webclient: %w", err)
			}
			break
		}
	}

	notifier := watcher.NewNotifier(cfg.Watcher.Webhook, logger)
	w, err := watcher.New(cfg.Watcher, store, webClient, rendered, notifier, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("watcher: %w", err)
	}

	notionClient := notion.NewClient(cfg.Notion, logger)
	roster := notion.NewRosterResolver(notionClient, cfg.Notion.Roster, logger)
	rec, err := reconciler.New(notionClient, roster, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("reconciler: %w", err)
	}

	bus := dispatch.NewBus(logger)
	bus.Subscribe(dispatch.TopicSiteChecks, func(ctx context.Context, msg dispatch.Message) error {
		// Ingress publishes {"url": ...} for one target; the timer
		// publishes "{}" for a full cycle. RunTarget handles both.
		return w.RunTarget(ctx, msg.Data)
	})
	bus.Subscribe(dispatch.TopicAlerts, func(ctx context.Context, msg dispatch.Message) error {
		return rec.Reconcile(ctx, msg.Data)
	})

	srv := server.NewServer(cfg.Server, bus, cfg.Watcher.Targets, logger)

	return &Application{
		cfg:       cfg,
		logger:    logger.With(logging.Field{Key: "component", Value: "app"}),
		bus:       bus,
		store:     store,
		watcher:   w,
		server:    srv,
		webClient: webClient,
		rendered:  rendered,
	}, nil
}

// Run serves ingress until ctx is canceled. When a watch interval is
// configured, a timer also publishes full-cycle triggers.
func (a *Application) Run(ctx context.Context) error {
	if a.cfg.WatchInterval > 0 {
		go a.runTicker(ctx)
	}

	httpServer := a.server.HTTPServer()
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", logging.Field{Key: "addr", Value: httpServer.Addr})
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (a *Application) runTicker(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.WatchInterval)
	defer ticker.Stop()

	a.logger.Info("periodic watch enabled",
		logging.Field{Key: "interval", Value: a.cfg.WatchInterval.String()})

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.bus.Publish(ctx, dispatch.TopicSiteChecks, []byte(`{}`)); err != nil {
				a.logger.Error("periodic publish failed",
					logging.Field{Key: "error", Value: err.Error()})
			}
		}
	}
}

// Close releases the application's resources.
func (a *Application) Close() {
	if a.webClient != nil {
		a.webClient.Close()
	}
	if a.rendered != nil {
		a.rendered.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}
