package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-checkout/internal/api"
	"ms-checkout/internal/catalog"
	"ms-checkout/internal/config"
	"ms-checkout/internal/database/migrations"
	"ms-checkout/internal/fulfillment"
	"ms-checkout/internal/gateway"
	"ms-checkout/internal/kafka"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/order"
	orderdb "ms-checkout/internal/order/db"
	"ms-checkout/internal/payment/storage"
	"ms-checkout/internal/pricing"
	"ms-checkout/internal/ticketcode"
	"ms-checkout/internal/tickets"
	ticketdb "ms-checkout/internal/tickets/db"
	"ms-checkout/internal/tickets/qr"
)

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Connecting to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			err = sqldb.Ping()
		}
		if err == nil {
			break
		}
		log.Error("DATABASE", fmt.Sprintf("PostgreSQL connection failed: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Addr))
	return client
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Checkout Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	ctx := context.Background()

	bunDB := connectPostgres(cfg.Database, log)
	defer bunDB.Close()

	redisClient := connectRedis(ctx, cfg.Redis, log)
	defer redisClient.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions(), log)
	if err := runner.Up(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migration failed: %v", err))
	}

	topics := kafka.Topics{
		OrderCreated:  cfg.Kafka.Topics.OrderCreated,
		OrderPaid:     cfg.Kafka.Topics.OrderPaid,
		OrderFailed:   cfg.Kafka.Topics.OrderFailed,
		TicketsIssued: cfg.Kafka.Topics.TicketsIssued,
	}
	var events fulfillment.EventPublisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, topics, log)
		defer producer.Close()
		events = producer
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics.All()); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
	} else {
		log.Warn("KAFKA", "Kafka disabled, order lifecycle events will not be published")
	}

	stripeGateway, err := gateway.NewStripeGateway(cfg.Stripe, log)
	if err != nil {
		log.Fatal("GATEWAY", fmt.Sprintf("Stripe initialization failed: %v", err))
	}
	verifier := gateway.NewWebhookVerifier(cfg.Stripe.WebhookSecret, log)

	attemptStore, err := storage.NewPostgreSQLStoreWithDB(bunDB.DB, log)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Payment attempt store initialization failed: %v", err))
	}

	catalogDB := &catalog.DB{Bun: bunDB}
	ledger := order.NewLedger(&orderdb.DB{Bun: bunDB}, log)
	engine := pricing.NewEngine(catalogDB, catalogDB, cfg.Fees, log)
	issuer := tickets.NewIssuer(
		&ticketdb.DB{Bun: bunDB},
		catalogDB,
		ticketcode.NewGenerator(),
		qr.NewGenerator(cfg.Tickets.QRSecret),
		log,
	)

	orchestrator := &fulfillment.Orchestrator{
		Pricing:  engine,
		Ledger:   ledger,
		Gateway:  stripeGateway,
		Tickets:  issuer,
		Events:   events,
		Attempts: attemptStore,
		Catalog:  catalogDB,
		Guard:    fulfillment.NewEventGuard(redisClient, log),
		Logger:   log,
	}

	handler := &api.Handler{
		Pricing:      engine,
		Orchestrator: orchestrator,
		Ledger:       ledger,
		Tickets:      &ticketdb.DB{Bun: bunDB},
		Attempts:     attemptStore,
		Verifier:     verifier,
		Logger:       log,
	}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	handler.Routes(r)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Checkout Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Checkout Service shutdown complete")
	}
}
