package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"vigil/api"
	"vigil/config"
	"vigil/ingest"
	"vigil/storage"

	"go.uber.org/zap"
)

// App represents the vigil service with all its components. The long-lived
// listeners and the shared store handle are constructed once here and passed
// by reference into the per-message handlers, so tests can instantiate
// isolated instances.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	SQLite       *storage.SQLite
	EventStorage *storage.EventStorage
	Ingestor     *ingest.Ingestor

	SyslogListener  *ingest.SyslogListener
	WebhookListener *ingest.WebhookListener
	APIServer       *api.API

	serviceWg *sync.WaitGroup
}

// NewApp creates a new application instance and initializes all components.
func NewApp(ctx context.Context) (*App, error) {
	app := &App{serviceWg: &sync.WaitGroup{}}

	logger, sugar, err := InitLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger = logger
	app.Sugar = sugar

	sugar.Info("vigil ingestion service starting...")

	cfg, err := InitConfig(sugar)
	if err != nil {
		return nil, err
	}
	app.Config = cfg

	sqlite, eventStorage, err := InitSQLite(cfg, sugar)
	if err != nil {
		return nil, err
	}
	app.SQLite = sqlite
	app.EventStorage = eventStorage

	app.Ingestor = ingest.NewIngestor(eventStorage, sugar)

	return app, nil
}

// Start starts all listeners and the API server.
func (a *App) Start(ctx context.Context) error {
	a.SyslogListener = ingest.NewSyslogListener(a.Config, a.Ingestor, a.Sugar)
	a.WebhookListener = ingest.NewWebhookListener(a.Config, a.Ingestor, a.Sugar)
	a.APIServer = api.NewAPI(a.Config, a.EventStorage, a.Sugar)

	startListener := func(name string, startFunc func() error) {
		a.serviceWg.Add(1)
		go func() {
			defer a.serviceWg.Done()
			defer func() {
				if r := recover(); r != nil {
					a.Sugar.Errorw(fmt.Sprintf("%s listener panicked", name), "panic", r)
				}
			}()
			if err := startFunc(); err != nil {
				a.Sugar.Errorw(fmt.Sprintf("Failed to start %s listener", name), "error", err)
			}
		}()
	}

	startListener("Syslog", a.SyslogListener.Start)
	startListener("Webhook", a.WebhookListener.Start)

	if err := a.APIServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

// Shutdown gracefully shuts down all components: listeners first so no new
// events arrive, then the API server, then the store.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	if a.SyslogListener != nil {
		a.SyslogListener.Stop()
	}
	if a.WebhookListener != nil {
		a.WebhookListener.Stop()
	}

	if a.APIServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.APIServer.Stop(ctx); err != nil {
			a.Sugar.Errorw("Failed to stop API server", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		a.serviceWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		a.Sugar.Warn("Service goroutine shutdown timed out")
	}

	if a.SQLite != nil {
		a.SQLite.Close()
	}

	a.Sugar.Info("Shutdown complete")
	a.Logger.Sync()
}
