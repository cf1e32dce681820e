package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"

	"github.com/kirpputori/backend/internal/database"
	mW "github.com/kirpputori/backend/internal/middleware"
	"github.com/kirpputori/backend/internal/services"
	"github.com/kirpputori/backend/internal/session"
	"github.com/kirpputori/backend/internal/store"
	"github.com/kirpputori/backend/internal/sweeper"
)

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("debug.enabled", "DEBUG_ENABLED")

	viper.BindEnv("session.ttl", "SESSION_TTL")
	viper.BindEnv("session.secure_cookies", "SESSION_SECURE_COOKIES")

	viper.BindEnv("uploads.dir", "UPLOADS_DIR")
	viper.BindEnv("sweeper.interval", "SWEEPER_INTERVAL")
	viper.BindEnv("sweeper.max_age", "SWEEPER_MAX_AGE")

	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("debug.enabled", false)
	viper.SetDefault("session.ttl", "720h")
	viper.SetDefault("session.secure_cookies", false)
	viper.SetDefault("uploads.dir", "./public")
	viper.SetDefault("sweeper.interval", "10s")
	viper.SetDefault("sweeper.max_age", "10m")
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	debug := viper.GetBool("debug.enabled")
	if debug {
		log.Println("Debug mode enabled: admin endpoints and log queries are open")
	}

	// Initialize storage
	db := database.InitDatabase()
	defer db.Close()

	redisClient, err := database.InitRedis()
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	uploadDir := viper.GetString("uploads.dir")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		log.Fatalf("Failed to create upload directory %s: %v", uploadDir, err)
	}

	// Initialize services
	st := store.New(db)
	sessions := session.NewManager(redisClient,
		viper.GetDuration("session.ttl"),
		viper.GetBool("session.secure_cookies"))
	trade := services.NewTradeService(st, time.Now)

	authService := services.NewAuthService(st, sessions)
	itemService := services.NewItemService(st, trade)
	transactionService := services.NewTransactionService(st, trade, sessions, debug)
	adminService := services.NewAdminService(st, trade, sessions, debug)
	attachmentService := services.NewAttachmentService(st, uploadDir)

	// Background reaper for uploads that never got bound to a listing
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go sweeper.New(st,
		viper.GetDuration("sweeper.interval"),
		viper.GetDuration("sweeper.max_age")).Run(sweepCtx)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Uploaded images and thumbnails
	r.Handle("/public/*", http.StripPrefix("/public/", mW.StaticFileServer(uploadDir)))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/user/new", authService.Register)
		r.Post("/user/login", authService.Login)
		r.Get("/user/logout", authService.Logout)
		r.Post("/user", authService.UserInfo)
		r.Post("/item/list", itemService.List)
		r.Post("/log", transactionService.Log)
		r.Post("/admin/give", adminService.Give)
		r.Get("/admin/db/clear", adminService.ClearDB)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.Auth(sessions))

			r.Post("/item/new", itemService.New)
			r.Post("/item/buy", itemService.Buy)
			r.Post("/transfer", transactionService.Transfer)
			r.Post("/attachment/upload", attachmentService.Upload)
		})
	})

	port := viper.GetString("server.port")

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	stopSweeper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
