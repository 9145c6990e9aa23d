package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_market/internal/cart"
	"github.com/fjod/go_market/internal/config"
	"github.com/fjod/go_market/internal/domain"
	h "github.com/fjod/go_market/internal/http"
	"github.com/fjod/go_market/internal/metrics"
	"github.com/fjod/go_market/internal/pricing"
	"github.com/fjod/go_market/internal/publisher"
	"github.com/fjod/go_market/internal/reconcile"
	"github.com/fjod/go_market/internal/repository"
	"github.com/fjod/go_market/internal/service"
	"github.com/fjod/go_market/internal/store"
	"github.com/fjod/go_market/pkg/circuitbreaker"
	"github.com/fjod/go_market/pkg/logger"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const serviceName = "market"

func main() {
	app := &cli.App{
		Name:  serviceName,
		Usage: "multi-vendor marketplace checkout and order fulfillment",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the stock reconciler",
				Action: serve,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "migrate", Value: true, Usage: "apply migrations before serving"},
				},
			},
			{
				Name:   "migrate",
				Usage:  "apply SQL migrations and exit",
				Action: migrate,
			},
			{
				Name:   "reconcile",
				Usage:  "run one stock reconciliation pass and exit",
				Action: reconcileOnce,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(serviceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	zap.ReplaceGlobals(log)
	return cfg, log, nil
}

func openDB(cfg *config.Config, runMigrations bool, log *zap.Logger) (*sqlx.DB, error) {
	creds := cfg.Credentials()
	db, err := repository.Open(creds)
	if err != nil {
		return nil, err
	}
	if runMigrations {
		if err := repository.RunMigrations(db, creds); err != nil {
			db.Close()
			return nil, err
		}
		log.Info("database migrations completed", zap.String("driver", cfg.DBDriver))
	}
	return db, nil
}

func migrate(_ *cli.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := openDB(cfg, true, log)
	if err != nil {
		return err
	}
	return db.Close()
}

func reconcileOnce(c *cli.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := openDB(cfg, false, log)
	if err != nil {
		return err
	}
	defer db.Close()

	ledger := store.NewSQLStore(db, domain.SystemClock{})
	r := reconcile.NewReconciler(cfg.Reconcile(), ledger, ledger, domain.SystemClock{}, nil, log)
	released, restocked := r.RunOnce(c.Context)
	log.Info("reconciliation finished", zap.Int("released", released), zap.Int("restocked", restocked))
	return nil
}

func serve(c *cli.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(cfg, c.Bool("migrate"), log)
	if err != nil {
		return err
	}
	defer db.Close()

	cartRepo, err := cart.OpenMongoRepository(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return err
	}
	defer cartRepo.Close(context.Background())

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}

	clock := domain.SystemClock{}
	m := metrics.New(prometheus.DefaultRegisterer)
	repo := repository.NewRepository(db)
	ledger := store.NewSQLStore(db, clock)
	carts := cart.NewService(cartRepo, cart.NewRedisCache(redisClient), clock, log)

	notifier, closeNotifier, err := buildNotifier(cfg, log)
	if err != nil {
		return err
	}
	defer closeNotifier()
	dispatcher := publisher.NewDispatcher(notifier, cfg.NotifyTimeout, log, m)

	checkout := service.NewCheckoutService(service.CheckoutDeps{
		Catalog:             repo,
		Addresses:           repo,
		Orders:              repo,
		Carts:               carts,
		Ledger:              ledger,
		Vouchers:            pricing.NewVoucherValidator(repo),
		OrderNumberAttempts: cfg.OrderNumberAttempts,
		Clock:               clock,
		Notifier:            dispatcher,
		Metrics:             m,
		Log:                 log,
	})
	orders := service.NewOrderService(repo, ledger, clock, dispatcher, m, log)

	router := h.NewRouter(h.Handlers{
		Cart:     h.NewCartHandler(carts, cfg.RequestTimeout),
		Checkout: h.NewCheckoutHandler(checkout, cfg.RequestTimeout),
		Orders:   h.NewOrdersHandler(orders, cfg.RequestTimeout),
		Vouchers: h.NewVoucherHandler(pricing.NewVoucherValidator(repo), clock, cfg.RequestTimeout),
	}, h.RouterConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		Gatherer:           prometheus.DefaultGatherer,
		Log:                log,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	reconciler := reconcile.NewReconciler(cfg.Reconcile(), ledger, ledger, clock, m, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("API starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		reconciler.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	dispatcher.Wait()
	log.Info("server exited")
	return err
}

// buildNotifier returns the configured transport behind a circuit breaker.
func buildNotifier(cfg *config.Config, log *zap.Logger) (publisher.Notifier, func(), error) {
	var (
		inner   publisher.Notifier
		closeFn = func() {}
	)

	switch cfg.Notifier {
	case config.NotifierKafka:
		k := publisher.NewKafkaNotifier(cfg.KafkaTopic, cfg.KafkaBrokers...)
		inner = k
		closeFn = func() {
			if err := k.Close(); err != nil {
				log.Warn("failed to close kafka writer", zap.Error(err))
			}
		}
	case config.NotifierAMQP:
		pool, err := publisher.NewChannelPool(cfg.AMQPURL, cfg.AMQPQueue, cfg.AMQPChannels)
		if err != nil {
			return nil, nil, err
		}
		inner = publisher.NewAMQPNotifier(pool)
		closeFn = pool.Close
	default:
		return publisher.Nop{}, closeFn, nil
	}

	breaker := circuitbreaker.New(circuitbreaker.DefaultSettings("notifier-"+cfg.Notifier), log)
	return publisher.NewGuarded(inner, breaker), closeFn, nil
}
