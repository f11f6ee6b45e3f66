package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/go_orders/internal/cache"
	ordersgrpc "github.com/fjod/go_orders/internal/grpc"
	h "github.com/fjod/go_orders/internal/http"
	"github.com/fjod/go_orders/internal/keylock"
	"github.com/fjod/go_orders/internal/notifier"
	"github.com/fjod/go_orders/internal/poller"
	"github.com/fjod/go_orders/internal/publisher"
	"github.com/fjod/go_orders/internal/repository"
	"github.com/fjod/go_orders/internal/service"
	"github.com/fjod/go_orders/pkg/circuitbreaker"
	"github.com/fjod/go_orders/pkg/logger"
	"github.com/fjod/go_orders/pkg/metrics"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	appLog := logger.New("orders", cfg.LogLevel)
	m := metrics.New("orders")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer repo.Close()
	if err := repo.RunMigrations(cfg.MigrationsDir); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Printf("Database ready (%s)", repo.Driver())

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// reads fall back to the database while Redis is away
		log.Printf("Redis ping failed: %v", err)
	} else {
		log.Printf("Redis ping succeeded")
	}

	catalogCache := cache.NewCatalogCache(redisClient, repo,
		cache.WithLogger(appLog.With("component", "cache")),
		cache.WithMetrics(m),
		cache.WithLoadTimeout(cfg.RequestTimeout))

	sinks, closeSinks := buildSinks(ctx, cfg, appLog, m)
	defer closeSinks()

	locks := keylock.New[int64]()
	catalogService := service.NewCatalogService(catalogCache, repo, catalogCache, catalogCache, appLog.With("component", "catalog"))
	cartService := service.NewCartService(repo, catalogCache, locks, appLog.With("component", "cart"))
	orderService := service.NewOrderService(repo, cartService, locks, sinks, cfg.SinkTimeout, appLog.With("component", "orders"), m)

	var wg sync.WaitGroup
	runBackground := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("%s started", name)
			fn(ctx)
			log.Printf("%s stopped", name)
		}()
	}

	if len(cfg.KafkaBrokers) > 0 {
		outbox := publisher.NewOutboxPoller(repo, publisher.NewKafkaWriter(cfg.KafkaBrokers...), appLog.With("component", "outbox"), m)
		defer outbox.Close()
		runBackground("outbox publisher", outbox.Run)

		updates := poller.NewPoller(poller.NewKafkaReader(cfg.KafkaBrokers...), catalogCache, appLog.With("component", "catalog-updates"))
		defer updates.Close()
		runBackground("catalog updates consumer", updates.Run)
	} else {
		log.Printf("KAFKA_BROKERS not set, order events stay in the outbox")
	}

	limiter := h.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	runBackground("rate limiter sweeper", limiter.Run)

	healthServer := ordersgrpc.NewHealthServer(map[string]ordersgrpc.Check{
		repo.Driver(): repo.Ping,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	}, appLog.With("component", "health"))
	runBackground("health prober", healthServer.Run)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}
	go func() {
		log.Printf("gRPC health listening on port %s", cfg.GRPCPort)
		if err := healthServer.Serve(lis); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
	}()

	router := h.NewRouter(h.RouterConfig{
		Carts:   cartService,
		Orders:  orderService,
		Catalog: catalogService,
		Health: func(r *http.Request) error {
			return repo.Ping(r.Context())
		},
		AdminToken:     cfg.AdminToken,
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
		TrustProxy:     cfg.TrustProxy,
		Metrics:        m,
		Logger:         appLog.With("component", "http"),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Orders API starting on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}
	healthServer.GracefulStop()
	wg.Wait()

	log.Println("server exited")
}

func openRepository(ctx context.Context, cfg *Config) (*repository.Repository, error) {
	if cfg.DBDriver == repository.DriverSQLite {
		return repository.NewSQLite(cfg.SQLitePath)
	}
	return repository.NewPostgres(ctx, &cfg.DB)
}

// buildSinks wires every notification sink that has configuration. The
// returned func releases their connections.
func buildSinks(ctx context.Context, cfg *Config, appLog *slog.Logger, m *metrics.Metrics) (*notifier.Multi, func()) {
	var (
		sinks   []notifier.Sink
		closers []func()
	)

	if cfg.WebhookURL != "" {
		settings := circuitbreaker.DefaultSettings("order-webhook")
		settings.Logger = appLog
		sinks = append(sinks, notifier.NewWebhook(cfg.WebhookURL, settings))
		log.Printf("Webhook sink enabled")
	}

	if cfg.MongoURI != "" {
		db, err := notifier.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		sinks = append(sinks, notifier.NewInbox(db))
		closers = append(closers, func() { disconnect(db.Client()) })
		log.Printf("Connected to MongoDB at %s", cfg.MongoURI)
	}

	if cfg.SESFrom != "" {
		client, err := notifier.NewSESClient(ctx, cfg.SESRegion)
		if err != nil {
			log.Fatalf("Failed to configure SES: %v", err)
		}
		sinks = append(sinks, notifier.NewMailer(client, cfg.SESFrom, cfg.SESTo))
		log.Printf("SES mailer enabled for %s", cfg.SESTo)
	}

	return notifier.NewMulti(appLog.With("component", "notifier"), m, sinks...), func() {
		for _, c := range closers {
			c()
		}
	}
}

func disconnect(client *mongo.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		log.Printf("MongoDB disconnect: %v", err)
	}
}
