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

	"polyglot-chat/internal/chat"
	"polyglot-chat/internal/config"
	"polyglot-chat/internal/db"
	"polyglot-chat/internal/language"
	myMiddleware "polyglot-chat/internal/middleware"
	"polyglot-chat/internal/room"
	"polyglot-chat/internal/translate"
	"polyglot-chat/internal/user"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Config & Logger
	cfg, err := config.Load()
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Change feed (Redis across instances, in-process otherwise)
	var notifier room.Notifier
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return exitRuntime, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redisClient.Close()
		log.Info("Connected to Redis", "addr", cfg.RedisAddr)
		notifier = room.NewRedisNotifier(redisClient, log)
	} else {
		notifier = room.NewLocalNotifier(256)
	}

	// 3. Room store
	store, closeStore, err := openStore(ctx, cfg, notifier, log)
	if err != nil {
		return exitRuntime, err
	}
	defer closeStore()

	// 4. Translation stack: memo -> same-language check -> provider
	languages := language.NewRegistry()
	provider := translate.NewClient(translate.Provider{
		BaseURL: cfg.SutraBaseURL,
		Model:   cfg.SutraModel,
		Timeout: cfg.TranslateTimeout,
	}, languages)
	var translator translate.Translator = translate.NewSameLanguage(provider)
	if cfg.MemoPath != "" {
		memoDB, err := translate.OpenMemoDB(cfg.MemoPath)
		if err != nil {
			return exitRuntime, err
		}
		defer func() {
			log.Info("Closing translation memo...")
			_ = memoDB.Close()
		}()
		translator = translate.NewMemo(memoDB, translator, log)
	}

	// 5. Features
	userService := user.NewService(cfg.JWTSecret)
	userHandler := user.NewHandler(userService)
	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	hub := chat.NewHub(notifier, log)
	hubErr := make(chan error, 1)
	go func() { hubErr <- hub.Run(ctx) }()

	chatHandler := chat.NewHandler(hub, store, translator, languages, cfg.SutraAPIKey, log)
	translateHandler := translate.NewHandler(translator, provider, cfg.SutraAPIKey, log)

	// 6. Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/api/sessions", userHandler.Join)
	// Anonymous callers bring their own key; guests may use the server's.
	r.With(authMiddleware.Optional).Post("/api/translate", translateHandler.Translate)
	r.Get("/api/languages", chatHandler.Languages)
	r.Get("/api/rooms/{sessionID}", chatHandler.GetRoom)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/ws", chatHandler.ServeWs)
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: r}
	srvErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", "addr", cfg.Addr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	// 7. Wait for stop or failure
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-srvErr:
		return exitRuntime, fmt.Errorf("http server error: %w", err)
	case err := <-hubErr:
		if err != nil {
			return exitRuntime, err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return exitRuntime, fmt.Errorf("shutdown: %w", err)
	}
	log.Info("Server stopped cleanly")
	return exitOK, nil
}

func openStore(ctx context.Context, cfg config.Config, notifier room.Notifier, log *slog.Logger) (room.Store, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		database, err := db.NewDatabase(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to DB: %w", err)
		}
		if err := database.AutoMigrate(ctx); err != nil {
			database.Close()
			return nil, nil, fmt.Errorf("migration failed: %w", err)
		}
		log.Info("Connected to PostgreSQL")
		return room.NewPostgresStore(database.Pool, notifier, log), database.Close, nil

	default:
		store, err := room.NewSQLiteStore(cfg.SQLitePath, notifier, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open SQLite: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("migration failed: %w", err)
		}
		log.Info("Opened SQLite", "path", cfg.SQLitePath)
		return store, func() { _ = store.Close() }, nil
	}
}
