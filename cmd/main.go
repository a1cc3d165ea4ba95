/**
 * @description
 * This is the main entry point for the commerce-service. It is responsible
 * for initializing all components of the service: configuration, database
 * connection pool, Redis rate limiter, RabbitMQ producer and consumer, the
 * repository, the core application service, the expiry sweeper, and the
 * HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/fera-art/commerce-service/internal/api"
	"github.com/fera-art/commerce-service/internal/app"
	"github.com/fera-art/commerce-service/internal/config"
	"github.com/fera-art/commerce-service/internal/domain"
	"github.com/fera-art/commerce-service/internal/store"
	rmrabbit "github.com/fera-art/commerce-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting commerce-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish commerce events.
	var producer rmrabbit.Publisher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rmrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		producer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Redis backs the rate limit on the transaction recording endpoints.
	// Missing or unreachable Redis degrades to no throttling, never to a
	// failed boot.
	var redisClient *redis.Client
	if cfg.RecordRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; record rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; record rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; record rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	commerceService := app.NewService(repository, producer, app.Settings{
		OrderExpiry:       time.Duration(cfg.OrderExpiryHours) * time.Hour,
		LicenseFeePercent: cfg.LicenseFeePercent,
		CommissionPercent: cfg.ResaleCommissionPercent,
		TolerancePercent:  cfg.MatchTolerancePercent,
		BankAccountName:   cfg.BankAccountName,
		BankIBAN:          cfg.BankIBAN,
		BankName:          cfg.BankName,
		USDTWallets: map[domain.CryptoNetwork]string{
			domain.NetworkTRC20: cfg.USDTWalletTRC20,
			domain.NetworkERC20: cfg.USDTWalletERC20,
			domain.NetworkBEP20: cfg.USDTWalletBEP20,
		},
	})

	// Start the expiry sweeper so stale PENDING_PAYMENT orders terminate
	// even when nobody reads them.
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	sweeper := app.NewSweeper(commerceService, logger, cfg.OrderExpirySweepSchedule)
	sweeper.Start()
	defer sweeper.Stop()

	// Payment reports can also arrive over the message bus from ingest
	// adapters watching the rails. The consumer is optional: HTTP recording
	// keeps working without it.
	rabbitConsumer, err := rmrabbit.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; payment reports accepted over HTTP only\" err=%v", err)
	} else {
		defer rabbitConsumer.Close()
		if err := rabbitConsumer.ConsumeWithBindings(rmrabbit.CommerceExchange, cfg.PaymentReportQueue, commerceService.PaymentReportBindings()); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"payment report consumer start failed\" err=%v", err)
		}
		log.Printf("level=info component=bootstrap msg=\"payment report consumer started\" queue=%s", cfg.PaymentReportQueue)
	}

	// Initialize the API handlers and router.
	commerceHandlers := api.NewCommerceHandlers(commerceService)
	routerOpts := api.RouterOptions{
		JWKSURL:              cfg.JWKSURL,
		InternalAPIKey:       cfg.InternalAPIKey,
		RecordLimitPerMinute: cfg.RecordRateLimitPerMinute,
	}
	if redisClient != nil {
		routerOpts.RecordRateLimiter = app.NewRedisRecordRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
	}

	router := chi.NewRouter()
	router.Mount("/commerce", api.CommerceRoutes(commerceHandlers, routerOpts))

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
