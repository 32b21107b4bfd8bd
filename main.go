package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// .env is optional in deployed environments where variables are injected.
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file loaded, using process environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// run wires config, logging, storage and side services, then serves until
// ctx is cancelled and drains in-flight requests.
func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := newLogger(cfg.Env)
	defer func() { _ = log.Sync() }()

	pool, err := newDBPool(ctx, cfg.DBURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info("DB pool ready")

	h := newHandler(pool, cfg, log)

	if cfg.RedisURL != "" {
		cache, err := newRedisLeaderboardCache(ctx, cfg.RedisURL, cfg.LeaderboardTTL, log)
		if err != nil {
			return err
		}
		defer cache.close()
		h.cache = cache
		log.Info("leaderboard cache enabled", zap.Duration("ttl", cfg.LeaderboardTTL))
	}
	if cfg.MetricsEnabled {
		publisher, err := newCloudWatchPublisher(cfg.AWSRegion, cfg.MetricsNamespace, log)
		if err != nil {
			return err
		}
		h.metrics = publisher
		log.Info("cloudwatch metrics enabled", zap.String("namespace", cfg.MetricsNamespace))
	}
	if cfg.SMTPHost != "" {
		h.mailer = newSMTPMailer(cfg)
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))
	h.registerRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           withCORS(cfg.AllowedOrigins)(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// withCORS allows the configured browser origins to call the API with a bearer token.
func withCORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	})
}
