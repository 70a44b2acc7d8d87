package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront/internal/addressbook"
	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/consumer"
	"github.com/fjod/go_cart/storefront/internal/events"
	"github.com/fjod/go_cart/storefront/internal/health"
	storehttp "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/publisher"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var version = "dev"

type backends struct {
	store  repository.Store
	book   addressbook.Book
	images storage.ImageStore
	close  []func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("storefront", "info")
		boot.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New(cfg.ServiceName, cfg.LogLevel)
	log.Info().Str("version", version).Str("storage", cfg.StorageDriver).Msg("storefront starting...")

	var wg sync.WaitGroup
	m := metrics.New()
	checks := health.NewRegistry(version)

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	b, err := openBackends(startCtx, cfg, checks, log)
	startCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer b.shutdown()

	var orderCache cache.OrderCache = cache.Nop{}
	if cfg.RedisEnabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer client.Close()
		rc := cache.NewRedisCache(client)
		checks.Register(health.NewOptionalChecker("redis", rc.Ping))
		orderCache = rc
	}

	orders := service.NewOrderService(b.store, orderCache, m, log)
	returns := service.NewReturnService(b.store, orderCache, b.images, b.book, m, log)
	hub := events.NewHub(m, log)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(workerCtx)
		}()
	}

	var poller *publisher.OutboxPoller
	var closers []func()
	if cfg.KafkaEnabled {
		poller = publisher.NewOutboxPoller(b.store, cfg.OrderEventsTopic, cfg.OutboxPollInterval, m, log, cfg.KafkaBrokers...)

		checkout := consumer.NewCheckoutConsumer(orders, cfg.CheckoutTopic, log, cfg.KafkaBrokers...)
		orderEvents := consumer.NewOrderEventsConsumer(orders, hub, cfg.OrderEventsTopic, log, cfg.KafkaBrokers...)
		run(checkout.Run)
		run(orderEvents.Run)
		closers = append(closers, checkout.Close, func() {
			if err := orderEvents.Close(); err != nil {
				log.Error().Err(err).Msg("error closing order events reader")
			}
		})
		checks.Register(health.NewOptionalChecker("kafka", health.KafkaPing(cfg.KafkaBrokers...)))
	} else {
		log.Warn().Msg("kafka disabled, order events are relayed in-process and orders are accepted on POST /api/v1/orders")
		poller = publisher.NewOutboxPollerWithWriter(b.store, consumer.NewLocalOrderEvents(orders, hub, log), cfg.OutboxPollInterval, m, log)
	}
	run(poller.Run)

	router := storehttp.NewRouter(storehttp.Dependencies{
		Orders:         orders,
		Returns:        returns,
		Addresses:      b.book,
		Subscriptions:  http.HandlerFunc(hub.ServeWS),
		OrderIntake:    !cfg.KafkaEnabled,
		Health:         checks,
		Metrics:        m,
		Auth:           storehttp.NewAuthenticator(cfg.JWTSecret),
		RequestTimeout: cfg.RequestTimeout,
		MaxUploadSize:  cfg.MaxUploadSize,
		Log:            log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("storefront listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down storefront...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	hub.Close()
	workerCancel()

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		log.Info().Msg("workers stopped cleanly")
	case <-shutdownCtx.Done():
		log.Warn().Msg("workers didn't stop in time")
	}

	for _, c := range closers {
		c()
	}
	if err := poller.Close(); err != nil {
		log.Error().Err(err).Msg("error closing outbox publisher")
	}
	log.Info().Msg("storefront stopped")
}

func openBackends(ctx context.Context, cfg *config.Config, checks *health.Registry, log zerolog.Logger) (*backends, error) {
	if cfg.StorageDriver == config.StorageMemory {
		log.Warn().Msg("using in-memory storage, data is lost on restart")
		return &backends{
			store:  repository.NewMemoryStore(),
			book:   addressbook.NewMemoryBook(),
			images: storage.NewMemoryStore(),
		}, nil
	}

	creds := &repository.Credentials{
		Host:              cfg.DBHost,
		Port:              cfg.DBPort,
		User:              cfg.DBUser,
		Password:          cfg.DBPassword,
		DBName:            cfg.DBName,
		MigrationsDirPath: cfg.MigrationsPath,
	}
	repo, err := repository.NewRepository(creds)
	if err != nil {
		return nil, err
	}
	b := &backends{store: repo}
	b.close = append(b.close, func() { _ = repo.Close() })

	if err := repo.RunMigrations(creds); err != nil {
		b.shutdown()
		return nil, err
	}
	log.Info().Msg("database migrations completed")
	checks.Register(health.NewPingChecker("postgres", repo.Ping))

	db, err := addressbook.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		b.shutdown()
		return nil, err
	}
	b.close = append(b.close, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = db.Client().Disconnect(ctx)
	})
	checks.Register(health.NewPingChecker("mongo", func(ctx context.Context) error {
		return db.Client().Ping(ctx, nil)
	}))

	book := addressbook.NewMongoBook(db)
	if err := book.CreateIndexes(ctx); err != nil {
		b.shutdown()
		return nil, err
	}
	b.book = book

	if b.images, err = storage.NewGridFSStore(db); err != nil {
		b.shutdown()
		return nil, err
	}
	return b, nil
}

// shutdown releases backends in reverse order of opening.
func (b *backends) shutdown() {
	for i := len(b.close) - 1; i >= 0; i-- {
		b.close[i]()
	}
	b.close = nil
}
