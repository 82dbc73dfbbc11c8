package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codementor/internal/cache"
	"codementor/internal/config"
	"codementor/internal/repository"
	"codementor/internal/service"
	"codementor/internal/transport/rest"
	"codementor/internal/transport/ws"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"goa.design/clue/log"
)

func main() {
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if os.Getenv("DEBUG") != "" {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf(ctx, err, "invalid configuration")
	}
	log.Print(ctx, log.KV{K: "port", V: cfg.Port}, log.KV{K: "evaluator", V: cfg.Evaluator.Provider}, log.KV{K: "snapshots", V: cfg.SnapshotBackend})

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	// Redis backs the leaderboard mirror and, optionally, snapshots
	var rdb *redis.Client
	if cfg.RedisURI != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr()})
		defer rdb.Close()
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			log.Fatalf(ctx, err, "failed to ping Redis")
		}
		log.Printf(ctx, "connected to Redis")
	}

	// Snapshot storage
	var snapshots repository.SnapshotRepo
	switch cfg.SnapshotBackend {
	case config.SnapshotMongo:
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatalf(ctx, err, "failed to connect to MongoDB")
		}
		defer mongoClient.Disconnect(context.Background())

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = mongoClient.Ping(pingCtx, nil)
		cancel()
		if err != nil {
			log.Fatalf(ctx, err, "failed to ping MongoDB")
		}
		log.Printf(ctx, "connected to MongoDB")
		snapshots = repository.NewMongoSnapshotRepo(mongoClient, cfg.MongoDatabase)
	case config.SnapshotRedis:
		snapshots = cache.NewSnapshotCache(rdb, cfg.SnapshotTTL)
	default:
		snapshots = repository.NewFileSnapshotRepo(cfg.SessionsDir)
		log.Printf(ctx, "writing snapshots to %s", cfg.SessionsDir)
	}

	engine := service.NewEngine(1024)

	// Optional Redis leaderboard mirror
	var (
		publisher service.LeaderboardPublisher = service.NopPublisher{}
		fallback  service.StandingsSource
	)
	if rdb != nil {
		mirror := service.NewLeaderboardMirror(cache.NewLeaderboardCache(rdb, cfg.LeaderboardTTL))
		engine.Go(func() { mirror.Run(runCtx) })
		publisher = mirror
		fallback = mirror
	}

	coord := service.NewCoordinator(service.Options{
		Secret:       cfg.MentorSecret,
		Store:        service.NewSessionStore(),
		Loop:         engine,
		Scheduler:    service.NewTickerScheduler(engine),
		Evaluator:    service.NewEvaluatorService(cfg.Evaluator),
		Snapshots:    snapshots,
		Publisher:    publisher,
		PassingScore: cfg.Evaluator.PassingScore,
	})
	go engine.Run(runCtx)

	hub := ws.NewHub()
	go hub.Run(runCtx)

	wsHandler := ws.NewHandler(ctx, hub, engine, coord, ws.Options{
		MaxMessageBytes:   cfg.WebSocket.MaxMessageBytes,
		MessagesPerSecond: cfg.WebSocket.MessagesPerSecond,
		Burst:             cfg.WebSocket.Burst,
		SendBuffer:        cfg.WebSocket.SendBuffer,
	})

	router := rest.NewRouter(&rest.Container{
		LogContext:     ctx,
		AuthService:    service.NewAuthService(cfg.MentorSecret, cfg.JWTSecret),
		Sessions:       service.NewAdminService(engine, coord, fallback),
		WSHandler:      wsHandler,
		AllowedOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf(ctx, "server starting on :%s", cfg.Port)
		log.Printf(ctx, "  WS   /ws")
		log.Printf(ctx, "  POST /v1/auth/login")
		log.Printf(ctx, "  GET  /v1/sessions")
		log.Printf(ctx, "  GET  /v1/sessions/{id}/leaderboard")
		log.Printf(ctx, "  GET  /v1/sessions/{id}/snapshot")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf(ctx, err, "listen and serve")
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf(ctx, "shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf(ctx, err, "server forced to shutdown")
	}
	stop()
	hub.CloseAll()
	engine.Wait()

	log.Printf(ctx, "server exited")
}
