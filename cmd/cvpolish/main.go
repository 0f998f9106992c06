package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cvpolish-core/internal/backend"
	"cvpolish-core/internal/cache"
	"cvpolish-core/internal/handlers"
	"cvpolish-core/internal/httpserver"
	"cvpolish-core/internal/metrics"
	"cvpolish-core/internal/render"
	"cvpolish-core/pkg/logging/logging"
)

type Config struct {
	Port         string
	CacheBackend string // "redis" or "file"
	CacheDir     string
	RedisAddr    string
	CVBaseURL    string
	CVAPIKey     string
}

func LoadConfig() Config {
	return Config{
		Port:         getenv("PORT", "8080"),
		CacheBackend: getenv("CACHE_BACKEND", "file"),
		CacheDir:     os.Getenv("CACHE_DIR"),
		RedisAddr:    getenv("REDIS_ADDR", "127.0.0.1:6379"),
		CVBaseURL:    getenv("CV_BASE_URL", "https://api.cvservice.example.com"),
		CVAPIKey:     os.Getenv("CV_API_KEY"),
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("cvpolish exited with error: %v", err)
	}
}

func run() error {
	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	// ----- Config -----
	cfg := LoadConfig()

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.String("redis_addr", cfg.RedisAddr),
		zap.String("cv_base_url", cfg.CVBaseURL),
	)

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.CacheBackend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})

		// Fail fast if Redis is misconfigured
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established",
			zap.String("addr", cfg.RedisAddr),
		)
	}

	// ----- Durable blob store + cache façade -----
	var blobStore cache.BlobStore = cache.NewBlobStore(cache.StoreConfig{
		Backend: cfg.CacheBackend,
		Prefix:  "cvpolish:cache",
		Dir:     cfg.CacheDir,
	}, redisClient)
	blobStore = cache.NewLoggingBlobStore(blobStore)

	cacheSvc := cache.NewService(blobStore)

	// Sweep expired in-memory entries in the background.
	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cache.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cacheSvc.SweepExpired()
			case <-sweepDone:
				return
			}
		}
	}()
	defer close(sweepDone)

	// ----- Hosted CV service client -----
	cvClient, err := backend.NewClient(backend.Config{
		BaseURL: cfg.CVBaseURL,
		APIKey:  cfg.CVAPIKey,
	}, logger)
	if err != nil {
		return err
	}
	if closer, ok := cvClient.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	downloads := backend.NewDownloader(30 * time.Second)

	// ----- Render engine -----
	engine := render.NewEngine(render.NewChromiumRasterizer(), logger, render.Options{})
	defer engine.Close()

	// ----- Handlers -----
	resumeHandler := handlers.NewResumeHandler(cvClient, cacheSvc, downloads)
	previewHandler := handlers.NewPreviewHandler(engine)

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, resumeHandler, previewHandler)

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      120 * time.Second, // page renders and PDF streams are slow
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting cvpolish",
		zap.String("addr", srv.Addr),
		zap.String("cache_backend", cfg.CacheBackend),
	)

	// Start server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}

// getenv returns the value of the environment variable key or def if not set.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
