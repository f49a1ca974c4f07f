package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"opentrivia/clock"
	"opentrivia/config"
	"opentrivia/handlers"
	"opentrivia/middleware"
	"opentrivia/models"
	"opentrivia/routes"
	"opentrivia/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// defaultRooms stay open for the lifetime of the process.
var defaultRooms = []struct {
	name string
	cfg  models.RoomConfiguration
}{
	{
		name: "Anything Goes",
		cfg:  models.RoomConfiguration{MaxSeconds: 20, CanSkipQuestions: true},
	},
	{
		name: "Easy Street",
		cfg:  models.RoomConfiguration{Difficulty: models.DifficultyEasy, MaxSeconds: 30, CanSkipQuestions: true},
	},
	{
		name: "Hard Mode",
		cfg:  models.RoomConfiguration{Difficulty: models.DifficultyHard, MaxSeconds: 15},
	},
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger, err := config.InitLogger(cfg)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var tokens services.TokenStore = services.NewMemoryTokenStore()
	var mirror *services.LobbyMirror
	if cfg.RedisEnabled() {
		redisClient := config.InitRedis(cfg)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		tokens = services.NewRedisTokenStore(redisClient)
		mirror = services.NewLobbyMirror(redisClient, logger)
	}

	var resultsService *services.ResultsService
	var recorder services.ResultRecorder
	if cfg.DatabaseEnabled() {
		db, err := config.InitDB(cfg)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		resultsService = services.NewResultsService(db)
		if err := resultsService.Migrate(); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		recorder = resultsService
	}

	supplier := services.NewQuestionSupplier(cfg.TriviaAPIURL, &http.Client{Timeout: cfg.HTTPTimeout}, tokens, logger)

	loop := services.NewLoop(logger)
	bus := services.NewLifecycleBus()
	registry := services.NewRegistry(bus, services.RoomDeps{
		Exec:    loop,
		Clock:   clock.Real(),
		Source:  supplier,
		Results: recorder,
		Logger:  logger,
	})

	// Subscribers must be in place before the first room is created.
	supplier.Watch(bus, loop)
	hub := services.NewHub(loop, registry, bus, logger)
	if mirror != nil {
		mirror.Watch(bus)
		go mirror.Run(ctx)
	}

	janitor := services.NewJanitor(loop, registry, clock.Real(), cfg.AbandonedRoomTTL, prunerFor(resultsService), cfg.ResultsRetention, logger)
	if err := janitor.Start(); err != nil {
		logger.Fatal("Failed to start janitor", zap.Error(err))
	}

	go loop.Run(ctx)
	go hub.Run(ctx)

	if err := loop.Do(ctx, func() {
		for _, room := range defaultRooms {
			if _, err := registry.CreateRoom(room.name, false, room.cfg); err != nil {
				logger.Error("Failed to create default room", zap.String("name", room.name), zap.Error(err))
			}
		}
	}); err != nil {
		logger.Fatal("Failed to seed default rooms", zap.Error(err))
	}

	if cfg.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger), middleware.CORS(cfg.AllowedOrigins))

	sessions := services.NewSessionService(cfg.SessionSecret, cfg.SessionTTL)
	h := routes.Handlers{
		Rooms:          handlers.NewRoomHandler(loop, registry, supplier, logger),
		Sessions:       handlers.NewSessionHandler(sessions),
		SessionService: sessions,
		Hub:            hub,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	}
	if resultsService != nil {
		h.Results = handlers.NewResultsHandler(resultsService, logger)
	}
	routes.SetupRoutes(router, h)

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	go func() {
		logger.Info("Server starting", zap.String("addr", cfg.Addr()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	<-janitor.Stop().Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
}

// prunerFor keeps a nil *ResultsService from becoming a non-nil interface.
func prunerFor(results *services.ResultsService) services.ResultsPruner {
	if results == nil {
		return nil
	}
	return results
}
