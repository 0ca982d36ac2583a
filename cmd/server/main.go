package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"go-securechat/internal/chat"
	"go-securechat/internal/config"
	"go-securechat/internal/db"
	myMiddleware "go-securechat/internal/middleware"
	"go-securechat/internal/presence"
	"go-securechat/internal/sweeper"
	"go-securechat/internal/user"
)

func main() {
	// 1. Config & Flags
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("❌ Config: %v", err)
	}
	addr := flag.String("addr", cfg.Addr, "http service address")
	flag.Parse()
	cfg.SetupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(cfg.DSN)
	if err != nil {
		logrus.Fatalf("❌ Failed to connect to DB: %v", err)
	}
	defer database.Close()
	logrus.Info("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(ctx); err != nil {
		logrus.Fatalf("❌ Migration failed: %v", err)
	}
	logrus.Info("✅ Database Schema Initialized")

	// 3. Connect to Redis (Platform Layer)
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	defer redisClient.Close()
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		logrus.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	logrus.Info("✅ Connected to Redis")

	// 4. Initialize User Feature
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWTSecret)
	userHandler := user.NewHandler(userService)
	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 5. Initialize Chat Feature
	feed := chat.NewRedisFeed(redisClient, cfg.FeedChannel)
	store := chat.NewFeedStore(chat.NewRepository(database.Conn), feed)
	tracker := presence.NewTracker(redisClient, cfg.PresenceKey, cfg.PresenceTTL)

	hub := chat.NewHub(feed, tracker)
	go hub.Run(ctx)
	go hub.SubscribeToFeed(ctx)

	chatHandler := chat.NewHandler(hub, store, tracker,
		chat.SendLimit{Rate: cfg.SendRate, Burst: cfg.SendBurst},
		chat.WithPublicPassphrase(cfg.PublicKey),
	)

	// 6. Lifecycle sweeper (external cron can use cmd/sweeper instead)
	if cfg.SweepCron != "" {
		sched := sweeper.NewScheduler(sweeper.New(sweeper.NewRepository(database.Conn)), cfg.SweepCron)
		go sched.Start(ctx)
	} else {
		logrus.Info("in-process sweeper disabled")
	}

	// 7. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		// WebSocket (Real-time)
		r.Get("/ws", chatHandler.ServeWs)

		r.Delete("/api/messages/{id}", chatHandler.DeleteMessage)
		r.Get("/api/presence", chatHandler.ActiveUsers)
	})

	srv := &http.Server{Addr: *addr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logrus.Infof("🚀 Server starting on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.Fatal(err)
	}
	logrus.Info("👋 Server stopped")
}
