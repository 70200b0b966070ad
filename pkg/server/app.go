package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	mid "PulsePrice/internal/middleware"
	"PulsePrice/internal/service/contentstore"
	"PulsePrice/internal/service/ratelimit"
	"PulsePrice/internal/usecase"
	"PulsePrice/pkg/config"
	xhttp "PulsePrice/pkg/http"
	pkgkafka "PulsePrice/pkg/kafka"
	applogger "PulsePrice/pkg/logger"
)

const (
	pruneInterval  = time.Minute
	limiterIdleTTL = 10 * time.Minute
)

// Deps groups what the App starts and stops. Consumer and EventCounter are
// nil unless engagement is consumed from Kafka.
type Deps struct {
	Config       *config.Config
	Logger       *applogger.Logger
	Engine       *usecase.Engine
	Sinks        *mid.SinkPipeline
	Consumer     *pkgkafka.Consumer
	EventCounter *contentstore.EventCounter
	Limiter      *ratelimit.Limiter
	HTTP         *xhttp.Server
}

// App encapsulates the entire application lifecycle.
type App struct {
	Deps
	cancel context.CancelFunc
}

// New creates a new App instance with all dependencies.
func New(d Deps) *App {
	if d.Logger == nil {
		d.Logger = applogger.NewNop()
	}
	return &App{Deps: d}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Components get their own context so sinks can still drain after the signal.
	if err := a.Start(context.Background()); err != nil {
		return err
	}
	<-sigCtx.Done()

	a.Logger.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Start launches every component in dependency order: sinks before the
// engine so the first tick has somewhere to go, HTTP last.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	a.Sinks.Start(ctx)

	if a.EventCounter != nil {
		go a.EventCounter.Run(ctx, pruneInterval)
	}
	if a.Consumer != nil {
		if err := a.Consumer.Start(); err != nil {
			return err
		}
	}
	if a.Limiter != nil {
		go a.forgetIdleClients(ctx)
	}

	if err := a.Engine.Start(ctx); err != nil {
		a.Logger.Error("engine start failed", applogger.Error(err))
		return err
	}

	return a.HTTP.Start()
}

func (a *App) forgetIdleClients(ctx context.Context) {
	t := time.NewTicker(limiterIdleTTL)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.Limiter.Forget(limiterIdleTTL); n > 0 {
				a.Logger.Debug("rate limiter buckets released", applogger.Int("count", n))
			}
		}
	}
}

// Shutdown stops intake first and flushes the sinks last. Streams are
// closed before HTTP drains since their handlers only return on close.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down...")
	var errs []error

	a.Engine.CloseStreams()
	if err := a.HTTP.Stop(ctx); err != nil {
		a.Logger.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}

	a.Engine.Stop()

	if a.Consumer != nil {
		stopCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
		if err := a.Consumer.Stop(stopCtx); err != nil {
			a.Logger.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
		cancel()
	}

	a.Sinks.Stop()
	if a.cancel != nil {
		a.cancel()
	}

	a.Logger.Info("shutdown complete")
	return errors.Join(errs...)
}
