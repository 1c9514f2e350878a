package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-chat/internal/assistant"
	"github.com/weiawesome/wes-io-chat/internal/auth"
	"github.com/weiawesome/wes-io-chat/internal/cache"
	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/internal/dispatcher"
	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/guard"
	"github.com/weiawesome/wes-io-chat/internal/handler"
	"github.com/weiawesome/wes-io-chat/internal/hub"
	"github.com/weiawesome/wes-io-chat/internal/llm"
	"github.com/weiawesome/wes-io-chat/internal/metrics"
	"github.com/weiawesome/wes-io-chat/internal/repository"
	"github.com/weiawesome/wes-io-chat/internal/service"
	pkgconfig "github.com/weiawesome/wes-io-chat/pkg/config"
	"github.com/weiawesome/wes-io-chat/pkg/database"
	"github.com/weiawesome/wes-io-chat/pkg/jwt"
	pkglog "github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/middleware"
	"github.com/weiawesome/wes-io-chat/pkg/pubsub"
)

func main() {
	if err := pkgconfig.LoadDotEnv(); err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load .env")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	cfg.Log.ServiceName = "chat-server"
	if cfg.Log.Level == "debug" {
		cfg.Log.Pretty = true
	}
	pkglog.Init(cfg.Log)
	logger := pkglog.L()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db, domain.AllModels()...); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database migration completed")

	// Redis backs the room cache, the assistant queue and conversation memory.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.Redis.Address).Msg("failed to connect to redis")
	}

	bus, err := pubsub.NewPubSub(cfg.PubSubBus())
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.PubSub.Driver).Msg("failed to create pubsub bus")
	}
	defer bus.Close()

	// Live delivery
	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run(ctx)

	broadcaster := dispatcher.NewDispatcher(bus, wsHub)
	if err := broadcaster.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start dispatcher")
	}

	// Stores
	roomRepo := repository.NewGormRoomRepository(db)
	messageRepo := repository.NewGormMessageRepository(db)
	userRepo := repository.NewGormUserRepository(db)
	deadLetterRepo := repository.NewGormDeadLetterRepository(db)

	// Services
	membership := guard.NewMembershipGuard(roomRepo)
	chatSvc := service.NewChatService(roomRepo, messageRepo, membership, broadcaster, cfg.Assistant.DisplayName)
	roomCache := cache.NewRedisRoomCache(redisClient, cfg.Cache.Prefix)

	// Room search goes to Elasticsearch when enabled, the SQL store otherwise.
	var roomIndex repository.RoomSearchRepository
	if cfg.Search.Enabled {
		esClient, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: cfg.Search.Addresses})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create elasticsearch client")
		}
		esRepo := repository.NewESRoomSearchRepository(esClient, cfg.Search.Index)
		if err := esRepo.EnsureIndex(ctx); err != nil {
			logger.Fatal().Err(err).Strs("addresses", cfg.Search.Addresses).Msg("failed to prepare room search index")
		}
		logger.Info().Strs("addresses", cfg.Search.Addresses).Str("index", cfg.Search.Index).Msg("elasticsearch connected")
		roomIndex = esRepo
	}
	roomSvc := service.NewRoomService(roomRepo, messageRepo, roomCache, cfg.Cache.TTL, roomIndex)

	var pool *assistant.Pool
	if cfg.Assistant.Enabled {
		memory := llm.NewRedisMemory(redisClient, cfg.LLM.MemoryPrefix, cfg.LLM.MemoryWindow, cfg.LLM.MemoryTTL)
		generator := llm.NewOpenAIGenerator(llm.OpenAIConfig{
			APIKey:       cfg.LLM.APIKey,
			BaseURL:      cfg.LLM.BaseURL,
			Model:        cfg.LLM.Model,
			SystemPrompt: cfg.LLM.SystemPrompt,
		}, memory)

		queue := assistant.NewRedisQueue(redisClient, cfg.Assistant.QueueKey)
		responder := assistant.NewResponder(chatSvc, generator, queue, cfg.Assistant.Placeholder, cfg.Assistant.Timeout)
		chatSvc.SetAssistantTrigger(responder)

		pool = assistant.NewPool(queue, responder, deadLetterRepo, assistant.PoolConfig{
			Workers:           cfg.Assistant.Workers,
			PollInterval:      cfg.Assistant.PollInterval,
			VisibilityTimeout: cfg.Assistant.VisibilityTimeout,
			MaxAttempts:       cfg.Assistant.MaxAttempts,
			RetryBackoff:      cfg.Assistant.RetryBackoff,
		})
		pool.Start(ctx)
	}

	// Auth
	tokens, err := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token manager")
	}
	identities := auth.NewIdentityProvider(tokens, userRepo)
	authMiddleware := middleware.NewAuthMiddleware(identities)

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger, "/health", "/metrics"))
	r.Use(metrics.GinMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.NewChatHandler(chatSvc, authMiddleware).RegisterRoutes(r)
	handler.NewRoomHandler(roomSvc, authMiddleware).RegisterRoutes(r)
	handler.NewAdminHandler(deadLetterRepo, authMiddleware).RegisterRoutes(r)
	handler.NewWSHandler(wsHub, chatSvc, broadcaster, identities, cfg.WebSocket).RegisterRoutes(r)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("pubsub", cfg.PubSub.Driver).
			Bool("assistant", cfg.Assistant.Enabled).
			Msg("chat-server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down chat-server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	if pool != nil {
		pool.Wait()
	}
	broadcaster.Wait()

	logger.Info().Msg("chat-server stopped")
}
