package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"google.golang.org/genai"

	"github.com/stockpilot/paper-engine/internal/config"
	"github.com/stockpilot/paper-engine/internal/flows"
	"github.com/stockpilot/paper-engine/internal/ledger"
	"github.com/stockpilot/paper-engine/internal/marketdata"
	"github.com/stockpilot/paper-engine/internal/metrics"
	"github.com/stockpilot/paper-engine/internal/quote"
	"github.com/stockpilot/paper-engine/internal/sim"
	"github.com/stockpilot/paper-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	configPath := flag.String("config", "", "path to YAML config (optional, env fallback)")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		slog.Error("configuration error", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			slog.Error("schema setup failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.Redis.URL != "" {
			opt, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				slog.Error("invalid redis URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.Redis.TTL)
			slog.Info("Redis cache enabled", "ttl", cfg.Redis.TTL)
		}
	} else {
		slog.Warn("database.url not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- WebSocket hub ---
	hub := ledger.NewHub()
	go hub.Run()

	// --- Quote source + ledger service ---
	quotes := quote.NewStaticSource(cfg.Quotes.Seed)
	retry := ledger.RetryPolicy{
		MaxAttempts: cfg.Ledger.MaxRetries,
		Backoff:     cfg.Ledger.RetryBackoff,
	}
	ledgerSvc := ledger.NewService(st, quotes, retry, hub)

	// --- AI flows (optional: needs an API key) ---
	var flowClient *flows.Client
	if cfg.AI.APIKey != "" {
		gc, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.AI.APIKey})
		if err != nil {
			slog.Error("genai client failed", "err", err)
			os.Exit(1)
		}
		market := marketdata.NewClient(cfg.MarketData.APIKey,
			marketdata.WithTimeout(cfg.MarketData.Timeout))
		flowClient = flows.NewClient(gc, cfg.AI.Model, market, cfg.AI.Timeout)
		slog.Info("AI flows enabled", "model", cfg.AI.Model)
	} else {
		slog.Warn("ai.api_key not set, flow endpoints disabled")
	}

	// --- Simulated price refresher ---
	if cfg.Sim.Enabled {
		refresher := sim.New(sim.Config{
			Interval: cfg.Sim.Interval,
			MaxDrift: cfg.Sim.MaxDrift,
		}, st, hub, logger)
		refresher.Start(ctx)
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			refresher.Stop(stopCtx)
		}()
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"paper-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time ledger events.
		r.Get("/ws", hub.HandleWS)

		// Account state.
		r.Get("/accounts/{userID}", ledgerSvc.HandlePortfolio)
		r.Get("/accounts/{userID}/positions", ledgerSvc.HandlePositions)
		r.Get("/accounts/{userID}/transactions", ledgerSvc.HandleTransactions)

		// Ledger operations.
		r.Post("/trade", ledgerSvc.HandleTrade)
		r.Post("/deposit", ledgerSvc.HandleDeposit)
		r.Post("/withdraw", ledgerSvc.HandleWithdraw)

		// Quotes.
		r.Get("/quotes/{symbol}", ledgerSvc.HandleQuote)

		// AI flows.
		if flowClient != nil {
			r.Route("/flows", func(r chi.Router) {
				r.Post("/historical-data", flowClient.HandleHistoricalData)
				r.Post("/sentiment-decision", flowClient.HandleSentimentDecision)
				r.Post("/news-sentiment", flowClient.HandleNewsSentiment)
				r.Post("/backtest", flowClient.HandleBacktest)
				r.Post("/signal", flowClient.HandleSignal)
			})
		}
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("paper-engine listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down paper-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("paper-engine stopped")
}
