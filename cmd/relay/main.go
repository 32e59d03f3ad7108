package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-relay/internal/api"
	"github.com/fathima-sithara/chat-relay/internal/auth"
	"github.com/fathima-sithara/chat-relay/internal/config"
	"github.com/fathima-sithara/chat-relay/internal/events"
	"github.com/fathima-sithara/chat-relay/internal/gateway"
	"github.com/fathima-sithara/chat-relay/internal/kafka"
	"github.com/fathima-sithara/chat-relay/internal/metrics"
	"github.com/fathima-sithara/chat-relay/internal/push"
	relayredis "github.com/fathima-sithara/chat-relay/internal/redis"
	"github.com/fathima-sithara/chat-relay/internal/repository"
	"github.com/fathima-sithara/chat-relay/internal/service"
	"github.com/fathima-sithara/chat-relay/internal/storage"
	"github.com/fathima-sithara/chat-relay/internal/utils"
	"github.com/fathima-sithara/chat-relay/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chat-relay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger, err := utils.NewLogger(cfg.App.IsDev())
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("node", cfg.App.NodeID))

	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Mongo
	mc, err := repository.NewMongoClient(ctx, cfg.Mongo)
	if err != nil {
		return err
	}
	defer disconnectMongo(mc, logger)
	repos := repository.New(mc.Database(cfg.Mongo.DB))
	if err := repos.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	// S3
	blobs, err := storage.NewS3Store(ctx, cfg.S3)
	if err != nil {
		return fmt.Errorf("s3 init: %w", err)
	}

	// NATS is optional; a nil bus publishes nothing
	var bus *events.Bus
	if cfg.NATS.URL != "" {
		bus, err = events.Connect(cfg.NATS, logger)
		if err != nil {
			return err
		}
		defer bus.Close()
	}

	bridge := gateway.NewBridge()
	auths := auth.NewManager(cfg.JWT, cfg.TokenTTL)

	files := service.NewFileService(repos.Files, blobs, cfg.Upload.MaxFileSizeBytes, cfg.PresignTTL, logger)
	conversations := service.NewConversationService(repos.Conversations, repos.Messages, repos.Groups, files, bridge, bus, logger)
	users := service.NewUserService(repos.Users, repos.Tokens, repos.Groups, auths, logger)
	notifier := push.NewNotifier(cfg.Push, cfg.Breaker, users, logger)

	hub := ws.NewHub(logger)
	opts := []gateway.Option{gateway.WithNodeID(cfg.App.NodeID)}

	var (
		rdb      *goredis.Client
		relay    *relayredis.Relay
		presence api.PresenceLookup
		limiter  fiber.Handler
	)
	if cfg.Redis.Addr != "" {
		rdb, err = relayredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		store := relayredis.NewPresenceStore(rdb, cfg.Redis.Prefix, cfg.App.NodeID, cfg.PresenceTTL)
		relay = relayredis.NewRelay(rdb, cfg.Redis.RelayChannel, cfg.App.NodeID, logger)
		opts = append(opts, gateway.WithPresenceMirror(store), gateway.WithRelay(relay))
		presence = store
		limiter = relayredis.NewRateLimiter(rdb, cfg.Redis.Prefix, cfg.Redis.RateLimitPerMinute, time.Minute, logger).
			Middleware(func(c *fiber.Ctx) string { return c.IP() })
	}

	var (
		producer *kafka.Producer
		consumer *kafka.Consumer
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicMessageSent)
		opts = append(opts, gateway.WithMessagePublisher(producer))
		consumer = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicMessageCreated, cfg.Kafka.GroupID,
			kafka.NewMessageCreatedHandler(bridge, cfg.App.NodeID, logger), logger)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("message.created consumer stopped", zap.Error(err))
			}
		}()
	}

	controller := gateway.NewController(hub, conversations, logger, opts...)
	bridge.Register(controller)

	if relay != nil {
		go func() {
			if err := relay.Run(ctx, controller, nil); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("room relay stopped", zap.Error(err))
			}
		}()
	}

	var sub *nats.Subscription
	if bus != nil {
		sub, err = bus.SubscribeConversationUpdated(bridge)
		if err != nil {
			return err
		}
	}

	app := api.NewServer(api.Deps{
		Config:        cfg,
		Conversations: conversations,
		Users:         users,
		Files:         files,
		Notifier:      notifier,
		Gateway:       controller,
		Presence:      presence,
		WS:            ws.NewHandler(hub, controller, ws.OptionsFromConfig(cfg), logger),
		Auth:          auths,
		RateLimit:     limiter,
		Logger:        logger,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.App.PortString()
		logger.Info("chat relay listening", zap.String("addr", addr), zap.Bool("push", notifier.Enabled()), zap.Bool("auth", auths.Enabled()))
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutdown requested")
	bridge.Unregister()
	if sub != nil {
		_ = sub.Unsubscribe()
	}
	hub.CloseAll()
	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if consumer != nil {
		_ = consumer.Close()
	}
	if producer != nil {
		_ = producer.Close()
	}
	logger.Info("shutdown completed")
	return nil
}

func disconnectMongo(mc *mongo.Client, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mc.Disconnect(ctx); err != nil {
		logger.Warn("mongo disconnect", zap.Error(err))
	}
}
