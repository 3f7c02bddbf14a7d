package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"bidloft-auction-service/internal/adapters/broadcaster"
	"bidloft-auction-service/internal/adapters/db"
	"bidloft-auction-service/internal/adapters/orders"
	"bidloft-auction-service/internal/adapters/redis"
	"bidloft-auction-service/internal/adapters/scheduler"
	"bidloft-auction-service/internal/adapters/ws"
	"bidloft-auction-service/internal/app"
	"bidloft-auction-service/internal/config"
)

func main() {

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	initLogging(cfg)

	log.Info().Msg("Starting Bidloft Auction Service...")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	incrementPolicy, err := cfg.Auction.IncrementPolicy()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid bid increment configuration")
	}
	lifecyclePolicy := cfg.Auction.LifecyclePolicy()

	// Initialize database connection
	dbConn, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbConn.Close()

	log.Info().Msg("Database connection established")

	// Create repositories
	repoFactory := db.NewRepositoryFactory(dbConn)
	auctionRepo := repoFactory.GetAuctionRepository()
	maxBidRepo := repoFactory.GetMaxBidRepository()
	eventRepo := repoFactory.GetEventRepository()

	log.Info().Msg("Database repositories initialized")

	// Create Redis client
	redisClient := redis.NewClient(cfg)
	if err := redis.PingRedis(redisClient); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	log.Info().Msg("Redis connection established")

	// Create Redis broadcaster
	redisBroadcaster := broadcaster.NewBroadcaster(broadcaster.RedisBroadcasterParams{
		RedisClient: redisClient,
		Logger:      log.Logger,
	})
	log.Info().Msg("Redis broadcaster initialized")

	// Connect to NATS for order dispatch
	natsConn, err := nats.Connect(cfg.Nats.URL,
		nats.Name("bidloft-auction-service"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer natsConn.Drain()

	orderService, err := orders.NewNatsOrderService(orders.NatsOrderServiceParams{
		Conn:   natsConn,
		Config: cfg,
		Logger: log.Logger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize order dispatcher")
	}
	log.Info().Msg("NATS order dispatcher initialized")

	// Create business services
	lifecycleService := app.NewLifecycleService(app.LifecycleServiceParams{
		AuctionRepo: auctionRepo,
		MaxBidRepo:  maxBidRepo,
		Orders:      orderService,
		Broadcaster: redisBroadcaster,
		Policy:      lifecyclePolicy,
		Increments:  incrementPolicy,
		MaxRetries:  cfg.Auction.BidMaxRetries,
		SweepBatch:  cfg.Auction.SweepBatch,
		Logger:      log.Logger,
	})
	bidService := app.NewBidService(app.BidServiceParams{
		AuctionRepo: auctionRepo,
		MaxBidRepo:  maxBidRepo,
		EventRepo:   eventRepo,
		Broadcaster: redisBroadcaster,
		Advancer:    lifecycleService,
		Policy:      lifecyclePolicy,
		Increments:  incrementPolicy,
		MaxRetries:  cfg.Auction.BidMaxRetries,
		Logger:      log.Logger,
	})

	log.Info().Msg("Business services initialized")

	// Create lifecycle sweeper
	sweeper := scheduler.NewSweeper(scheduler.SweeperParams{
		RedisClient: redisClient,
		Lifecycle:   lifecycleService,
		Interval:    cfg.Auction.SweepInterval,
		Batch:       cfg.Auction.SweepBatch,
		Logger:      log.Logger,
	})

	// Start lifecycle sweeper
	sweeper.Start()
	log.Info().Msg("Lifecycle sweeper started")

	// Update services with the due-check scheduler
	lifecycleService.SetScheduler(sweeper)
	bidService.SetScheduler(sweeper)

	wsServer := ws.NewServer(ws.ServerParams{
		Config:      cfg,
		BidService:  bidService,
		Broadcaster: redisBroadcaster,
		Logger:      log.Logger,
	})

	log.Info().Msg("WebSocket server initialized")

	// Start WebSocket server
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting WebSocket server")
		if err := wsServer.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start WebSocket server")
			cancel()
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled")
	}

	// Graceful shutdown
	log.Info().Msg("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop lifecycle sweeper
	sweeper.Stop()
	log.Info().Msg("Lifecycle sweeper stopped")

	// Stop WebSocket server
	if err := wsServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping WebSocket server")
	}

	log.Info().Msg("Graceful shutdown completed")
}

func initLogging(cfg *config.Config) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Set log format
	if cfg.Logging.Format == "json" {
		// JSON format (default)
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		// Console format for development
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global logger
	zerolog.DefaultContextLogger = &log.Logger
}
