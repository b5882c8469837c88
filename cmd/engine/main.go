package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/packlane/orderflow/internal/deliveries"
	"github.com/packlane/orderflow/internal/discounts"
	"github.com/packlane/orderflow/internal/discounts/adapters"
	"github.com/packlane/orderflow/internal/orders"
	"github.com/packlane/orderflow/internal/payments"
	"github.com/packlane/orderflow/internal/positions"
	"github.com/packlane/orderflow/pkg/config"
	"github.com/packlane/orderflow/pkg/db"
	"github.com/packlane/orderflow/pkg/lock"
	"github.com/packlane/orderflow/pkg/logger"
	"github.com/packlane/orderflow/pkg/metrics"
	"github.com/packlane/orderflow/pkg/migrate"
	"github.com/packlane/orderflow/pkg/outbox"
	"github.com/packlane/orderflow/pkg/redis"
)

// runtime is the assembled engine graph. The engine stays an in-process
// module; hosts embed these services and wire their own provider adapters
// into an orders.Processor. This binary runs the operational shell around
// the graph: migrations, health and metrics.
type runtime struct {
	db    *db.Client
	redis *redis.Client
	locks *lock.Manager

	orders     *orders.Service
	positions  *positions.Service
	payments   *payments.Service
	deliveries *deliveries.Service
	discounts  *discounts.Service
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "engine"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "engine",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	engineMetrics := metrics.NewEngineMetrics(promRegistry)

	rt := buildRuntime(cfg, logg, dbClient, redisClient, engineMetrics)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting engine")

	server := &http.Server{
		Addr:    addr,
		Handler: newRouter(logg, rt, promRegistry),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "engine stopped unexpectedly", err)
		os.Exit(1)
	}
}

func buildRuntime(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, m *metrics.EngineMetrics) *runtime {
	conn := dbClient.DB()
	events := outbox.NewService(outbox.NewRepository(conn), logg)

	director := discounts.NewDirector(cfg.Discounts.StaticCodes)
	for _, adapter := range builtinDiscountAdapters() {
		director.Register(adapter)
	}

	positionSvc := positions.NewService(positions.NewRepository(conn), dbClient, events, logg)
	paymentSvc := payments.NewService(payments.NewRepository(conn), dbClient, events, logg)
	deliverySvc := deliveries.NewService(deliveries.NewRepository(conn), dbClient, events, logg)
	discountSvc := discounts.NewService(discounts.NewRepository(conn), director, dbClient, events, logg)

	orderSvc := orders.NewService(
		orders.NewRepository(conn), dbClient, events,
		positionSvc, paymentSvc, deliverySvc, discountSvc,
		m, cfg.Checkout, logg,
	)

	return &runtime{
		db:         dbClient,
		redis:      redisClient,
		locks:      lock.NewManager(redisClient, cfg.Lock, m, nil),
		orders:     orderSvc,
		positions:  positionSvc,
		payments:   paymentSvc,
		deliveries: deliverySvc,
		discounts:  discountSvc,
	}
}

// builtinDiscountAdapters are the adapters shipped with the engine. Hosts
// register additional adapters on the director before wiring a processor.
func builtinDiscountAdapters() []discounts.Adapter {
	return []discounts.Adapter{
		adapters.NewPercentOff("percent-off-10", 10),
		adapters.NewPercentOff("percent-off-20", 20),
	}
}
