package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xtrntr/parimut/internal/api"
	"github.com/xtrntr/parimut/internal/auth"
	"github.com/xtrntr/parimut/internal/cache"
	"github.com/xtrntr/parimut/internal/config"
	"github.com/xtrntr/parimut/internal/db"
	"github.com/xtrntr/parimut/internal/logger"
	"github.com/xtrntr/parimut/internal/metrics"
	"github.com/xtrntr/parimut/internal/notify"
	"github.com/xtrntr/parimut/internal/ws"
)

// Main entry point: sets up the store, ambient services, and HTTP server
func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Postgres
	database, err := db.NewDB(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(ctx)

	// Redis odds cache (optional)
	var odds *cache.OddsCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		odds = cache.New(rdb, cfg.OddsCacheTTL)
	}

	// Kafka notification producer (optional)
	var producer *notify.Producer
	if cfg.KafkaBrokers != "" {
		producer = notify.NewProducer(cfg.KafkaBrokers, cfg.TopicStakeAccepted, cfg.TopicEventSettled)
		defer producer.Close()
	}

	authService := auth.NewAuthService(database, cfg.JWTSecret, cfg.StartingBalance, cfg.AdminUsers)
	hub := ws.NewHub(func(r *http.Request) bool {
		return true // trusted front-ends only; tighten per deployment
	})
	handler := api.NewHandler(database, authService, odds, hub, producer, log)

	// Metrics and health on a dedicated port
	metrics.StartServer(cfg.MetricsPort, func(ctx context.Context) error {
		return database.Pool.Ping(ctx)
	})

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// WebSocket odds stream
	r.Get("/ws", hub.HandleWS)

	// Public endpoints
	r.Post("/auth/register", handler.Register)
	r.Post("/auth/login", handler.Login)
	r.Get("/events", handler.GetActiveEvents)
	r.Get("/events/archived", handler.GetArchivedEvents)
	r.Get("/events/{id}", handler.GetEvent)
	r.Get("/events/{id}/odds", handler.GetOdds)

	// Protected endpoints (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(handler.JWTAuthMiddleware)
		r.Post("/events/{id}/stakes", handler.PlaceStake)
		r.Get("/bets", handler.GetUserBets)
		r.Get("/me", handler.GetMe)

		// Admin-only operations
		r.Group(func(r chi.Router) {
			r.Use(handler.RequireAdmin)
			r.Post("/events", handler.CreateEvent)
			r.Post("/events/{id}/settle", handler.SettleEvent)
			r.Post("/users/{id}/balance", handler.AdjustBalance)
		})
	})

	log.Info("starting server", zap.String("port", cfg.HTTPPort))
	if err := http.ListenAndServe(":"+cfg.HTTPPort, r); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}
