package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"shopping/internal/app"
	"shopping/internal/database/memory"
	"shopping/internal/database/psql"
	"shopping/internal/events"
	"shopping/internal/events/rabbitmq"
	shoppinghandler "shopping/internal/handlers/shopping"
	"shopping/internal/port"
	"shopping/internal/routes"
	shoppingservice "shopping/internal/service/shopping"
	"shopping/pkg/config"
	"shopping/pkg/lib/logger"
	"shopping/pkg/lib/logger/sl"
	"shopping/pkg/lib/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.SetupLogger(cfg.HTTP.Env)
	if err != nil {
		panic(err)
	}

	storage, err := newStorage(log, cfg)
	if err != nil {
		panic(err)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RabbitMQ.Enabled {
		rmq, err := rabbitmq.New(log, cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
		if err != nil {
			panic(err)
		}
		defer rmq.Close()
		publisher = rmq
	}

	deps := routes.Deps{
		Log:            log,
		Ready:          storage,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	}

	var recorder shoppingservice.PurchaseRecorder
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m := metrics.New(reg)
		recorder = m
		deps.Metrics = m
		deps.Gatherer = reg
	}

	service := shoppingservice.New(log, storage, publisher, recorder)
	seed(log, service, cfg.Seed)

	deps.Handler = shoppinghandler.New(log, service)

	application := app.New(
		log,
		cfg.HTTP.Port,
		cfg.HTTP.ReadHeaderTimeout,
		routes.New(deps),
	)

	go func() {
		if err := application.Run(); err != nil {
			log.Error("Application failed to start", sl.Err(err))
			panic(err)
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGTERM, syscall.SIGINT)
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := application.Shutdown(ctx); err != nil {
		log.Error("Failed to stop HTTP server", sl.Err(err))
	}

	log.Info("Closing storage")
	if err := storage.Close(); err != nil {
		log.Error("Failed to close storage", sl.Err(err))
	}
}

func newStorage(log *slog.Logger, cfg *config.Config) (port.Storage, error) {
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		return psql.New(log, cfg.ConnectionString())
	default:
		return memory.New(log), nil
	}
}

func seed(log *slog.Logger, service *shoppingservice.ShoppingService, products []config.ProductSeed) {
	for _, p := range products {
		product, err := service.EnsureProduct(context.Background(), p.Name, p.Count)
		if err != nil {
			log.Error("Failed to seed product", slog.String("product", p.Name), sl.Err(err))
			continue
		}
		log.Debug("Product seeded", slog.String("product", product.Name), slog.Int("count", product.Count))
	}
}
