package server

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"LatentTrader/internal/domain/models"
	mid "LatentTrader/internal/middleware"
	apimetrics "LatentTrader/internal/service/metrics"
	"LatentTrader/internal/usecase"
	"LatentTrader/pkg/config"
	xhttp "LatentTrader/pkg/http"
	pkgkafka "LatentTrader/pkg/kafka"
	applogger "LatentTrader/pkg/logger"
	"LatentTrader/pkg/queue"
	"LatentTrader/pkg/util"
)

// Components are the wired parts the App drives. Either Collector is set
// (websocket source) or Consumer and EventsHandler are (kafka source).
type Components struct {
	Logger        *applogger.Logger
	Registry      *usecase.ModelRegistry
	Trainer       *usecase.Trainer
	Agent         *usecase.StreamingAgent
	Jobs          *queue.RedisQueue
	Pipeline      *mid.EventPipeline
	Collector     *usecase.EventCollector
	Consumer      *pkgkafka.Consumer
	EventsHandler *usecase.KafkaEventsHandler
	LogPublisher  applogger.Publisher
	HTTPServer    *xhttp.Server
	Closers       []io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	Components
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, c Components) *App {
	if c.Logger == nil {
		c.Logger = applogger.Nop()
	}
	return &App{cfg: cfg, Components: c}
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.start(ctx); err != nil {
		a.shutdown()
		return err
	}

	var err error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	case err = <-a.HTTPServer.Err():
		a.Logger.Error("http server failed", applogger.Error(err))
	}
	a.shutdown()
	return err
}

func (a *App) start(ctx context.Context) error {
	l := a.Logger

	if a.cfg.Log.Collector.Enabled && a.LogPublisher != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   a.cfg.Log.Collector.Interval,
			CountThreshold: a.cfg.Log.Collector.Threshold,
			Topic:          a.cfg.Kafka.AnomalyTopic,
			Publisher:      a.LogPublisher,
		})
		l.Info("log collector started", applogger.String("topic", a.cfg.Kafka.AnomalyTopic))
	}

	a.bootstrap(ctx)

	if a.Jobs != nil {
		if err := a.Jobs.Start(); err != nil {
			l.Error("job queue start error", applogger.Error(err))
			return err
		}
	}

	switch {
	case a.Collector != nil:
		if err := a.Collector.Start(ctx); err != nil {
			l.Error("collector start error", applogger.Error(err))
			return err
		}
		l.Info("collector started", applogger.String("product", a.cfg.Agent.Product))
	case a.Consumer != nil && a.EventsHandler != nil:
		a.Pipeline.Start(ctx)
		a.Consumer.RegisterHandler(a.EventsHandler)
		if err := a.Consumer.Start(); err != nil {
			l.Error("kafka consumer error", applogger.Error(err))
			return err
		}
		l.Info("kafka consumer started", applogger.String("topic", a.EventsHandler.Topic()))
	default:
		return errors.New("no event source configured")
	}

	apimetrics.Register()
	if err := a.HTTPServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}
	return nil
}

// bootstrap restores the last persisted model, or trains one over the
// configured lookback. Failures leave the agent holding until a model
// arrives through the job queue.
func (a *App) bootstrap(ctx context.Context) {
	l := a.Logger
	product := a.cfg.Agent.Product

	ok, err := a.Registry.Restore(ctx, product)
	if err != nil {
		l.Warn("model restore failed", applogger.String("product", product), applogger.Error(err))
	}
	if ok || !a.cfg.History.Bootstrap {
		return
	}

	step := time.Duration(a.cfg.History.Granularity) * time.Second
	from, to := util.AlignRange(time.Now().Add(-a.cfg.History.Lookback), time.Now(), step)
	p := models.TrainParams{Product: product, From: from, To: to, Granularity: a.cfg.History.Granularity}
	if _, err := a.Trainer.Train(ctx, p); err != nil {
		if errors.Is(err, usecase.ErrTrainingInProgress) {
			l.Info("bootstrap training skipped, another run holds the lock", applogger.String("product", product))
			return
		}
		l.Error("bootstrap training failed", applogger.String("product", product), applogger.Error(err))
	}
}

// shutdown stops everything in reverse start order.
func (a *App) shutdown() {
	l := a.Logger
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Stop(ctx); err != nil {
			l.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.Collector != nil {
		if err := a.Collector.Shutdown(ctx); err != nil {
			l.Warn("collector stop error", applogger.Error(err))
		}
	}
	if a.Consumer != nil {
		if err := a.Consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
		a.Pipeline.Stop()
	}

	if a.Jobs != nil {
		if err := a.Jobs.Stop(ctx); err != nil {
			l.Warn("job queue stop error", applogger.Error(err))
		}
	}

	if a.Agent != nil {
		pos, last := a.Agent.Position()
		l.Info("final position",
			applogger.Float64("cash", pos.Cash),
			applogger.Float64("asset", pos.Asset),
			applogger.Float64("last_price", last),
			applogger.Float64("valuation", pos.Valuation(last)))
	}

	l.RemoveCollector()

	for _, c := range a.Closers {
		if err := c.Close(); err != nil {
			l.Warn("close error", applogger.Error(err))
		}
	}
	l.Info("shutdown complete")
}
