package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nexus-chat/internal/blob"
	"nexus-chat/internal/cascade"
	"nexus-chat/internal/chat"
	"nexus-chat/internal/config"
	"nexus-chat/internal/db"
	myMiddleware "nexus-chat/internal/middleware"
	"nexus-chat/internal/notify"
	"nexus-chat/internal/presence"
	"nexus-chat/internal/store"
	"nexus-chat/internal/user"
	"nexus-chat/internal/view"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until a signal or a server error.
func run() error {
	// 1. Config & Logger
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Store
	st, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// 3. Presence (Redis when configured, otherwise the user table alone)
	var tracker presence.Tracker = presence.NewDirectoryTracker(st, log)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer func() { _ = redisClient.Close() }()
		tracker = presence.NewRedisTracker(redisClient, st, cfg.PresenceTTL, log)
		log.Info("Connected to Redis", "addr", cfg.RedisAddr)
	}

	// 4. Blob storage
	blobs, err := openBlobs(cfg)
	if err != nil {
		return err
	}

	// 5. Notification hub
	hub := notify.NewHub(tracker, log, cfg.EmitBuffer, cfg.ClientBuffer)
	go hub.Run(ctx)

	// 6. Features
	userService := user.NewService(st, cfg.JWTSecret, cfg.TokenTTL, log)
	userHandler := user.NewHandler(userService, log)

	chatService := chat.NewService(chat.Dependencies{
		Store:    st,
		Views:    view.NewComposer(st, tracker, log),
		Cascade:  cascade.NewCoordinator(st, blobs, log, cfg.DeleteConcurrency),
		Blobs:    blobs,
		Notifier: hub,
		Log:      log,
		Folder:   cfg.BlobFolder,
	})
	chatHandler := chat.NewHandler(chatService, log)
	gateway := notify.NewGateway(hub, chatService, log)

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 7. Routes
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/users/me", userHandler.Me)
		r.Get("/api/users/search", userHandler.SearchUsers)
		r.Get("/ws", gateway.ServeWs)
		chatHandler.Routes(r)
	})

	// 8. Serve until stopped
	srv := &http.Server{Addr: cfg.Addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "addr", cfg.Addr, "store", cfg.StoreDriver, "blobs", cfg.BlobDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("Program stopped cleanly")
	return nil
}

func openStore(cfg config.Config, log *slog.Logger) (store.Store, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn("Using the in-memory store, data is lost on restart")
		return store.NewMemory(), func() {}, nil
	}
	database, err := db.NewDatabase(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to DB: %w", err)
	}
	log.Info("Connected to PostgreSQL")
	if err := database.AutoMigrate(); err != nil {
		_ = database.Close()
		return nil, nil, fmt.Errorf("migration failed: %w", err)
	}
	log.Info("Database schema initialized")
	return store.NewPostgres(database.Conn), func() {
		log.Info("Closing PostgreSQL...")
		_ = database.Close()
	}, nil
}

func openBlobs(cfg config.Config) (blob.Store, error) {
	if cfg.BlobDriver == config.DriverMemory {
		return blob.NewMemory(), nil
	}
	c, err := blob.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	return c, nil
}
