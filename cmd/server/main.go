package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog-service/config"
	"catalog-service/internal/api"
	"catalog-service/internal/broker"
	"catalog-service/internal/redisclient"
	"catalog-service/internal/schema"
	"catalog-service/internal/service"
	"catalog-service/internal/store"
	"catalog-service/internal/store/memstore"
	"catalog-service/internal/util"
	"catalog-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	os.Exit(run())
}

// run wires and serves the catalog until a signal arrives. It returns the
// process exit code so that every deferred close runs before exiting.
func run() int {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Printf("Failed to initialize logger: %v", err)
		return 1
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting catalog service",
		zap.String("env", cfg.Server.Env),
		zap.String("store", cfg.Database.Driver))

	if cfg.Observ.JaegerEndpoint != "" {
		tp, err := util.InitTracer("catalog-service", cfg.Observ.JaegerEndpoint)
		if err != nil {
			logger.Error("Failed to initialize tracer", zap.Error(err))
			return 1
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	runner, err := openStore(cfg)
	if err != nil {
		logger.Error("Failed to open store", zap.Error(err))
		return 1
	}
	defer runner.Close()

	var cache schema.Cache
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Catalog.SchemaCacheTTL)
		if err != nil {
			logger.Error("Failed to connect to Redis", zap.Error(err))
			return 1
		}
		defer redisClient.Close()
		cache = redisClient
		logger.Info("Redis schema cache enabled", zap.Duration("ttl", cfg.Catalog.SchemaCacheTTL))
	}
	attrs := schema.New(cache)

	var events service.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicCatalog)
		defer producer.Close()
		events = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicCatalog))
	}

	catalog := service.NewCatalogService(runner, attrs, events)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	api.NewHandler(catalog).SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cache != nil && len(cfg.Kafka.Brokers) > 0 {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicCatalog, cfg.Kafka.ConsumerGroup)
		cacheWorker := worker.NewSchemaCacheWorker(consumer, attrs)
		g.Go(func() error {
			err := cacheWorker.Start(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		defer cacheWorker.Stop()
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return 1
	}
	logger.Info("Server exited")
	return 0
}

func openStore(cfg *config.Config) (store.Runner, error) {
	switch cfg.Database.Driver {
	case config.StoreDriverMemory:
		return memstore.New(cfg.Catalog.MaxTxRetries), nil
	case config.StoreDriverPostgres:
		db, err := store.NewStore(cfg.Database.URL, cfg.Catalog.MaxTxRetries)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Database.Driver)
	}
}
