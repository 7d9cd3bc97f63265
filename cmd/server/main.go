package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/joeychilson/pdfworks/cache"
	"github.com/joeychilson/pdfworks/config"
	"github.com/joeychilson/pdfworks/logger"
	"github.com/joeychilson/pdfworks/queue"
	"github.com/joeychilson/pdfworks/ratelimit"
	"github.com/joeychilson/pdfworks/server"
	"github.com/joeychilson/pdfworks/service"
	"github.com/joeychilson/pdfworks/upload"
)

const (
	defaultAddr          = ":8080"
	defaultConfigFile    = "./config.yaml"
	defaultLogLevel      = "info"
	queueShutdownTimeout = 60 * time.Second
)

var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Default().Warn("failed to load .env", "error", err)
	}

	addr := getEnv("ADDR", defaultAddr)
	configFile := getEnv("CONFIG_FILE", defaultConfigFile)
	redisURL := getEnv("REDIS_URL", "")
	logLevel := getEnv("LOG_LEVEL", defaultLogLevel)

	level, err := logger.ParseLevel(logLevel)
	log := logger.NewWithLevel(level)
	if err != nil {
		log.Warn("unknown log level, using info", "level", logLevel)
	}

	log.Info("starting pdfworks API server", "log_level", level.String(), "version", version)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.New()
	if _, statErr := os.Stat(configFile); statErr == nil {
		log.Info("loading config from file", "file", configFile)
		cfg, err = config.LoadConfig(configFile)
		if err != nil {
			log.Error("failed to load config from file", "error", err)
			os.Exit(1)
		}
	} else {
		log.Info("using default configuration (config file not found)", "checked", configFile)
	}
	applyEnv(cfg, log)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	cacheCfg := cacheConfig(cfg)

	var (
		redisClient *redis.Client
		results     cache.Cache
		jobs        queue.Store
	)
	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Error("failed to parse redis URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Error("failed to connect to redis", "error", err, "addr", opts.Addr)
			os.Exit(1)
		}
		log.Info("redis connection established", "addr", opts.Addr)

		results = cache.NewRedisCacheWithClient(redisClient, cacheCfg)
		jobs = queue.NewRedisStore(redisClient, "", cfg.Queue.GetJobTTL())
	} else {
		log.Info("REDIS_URL not set, using in-memory cache, job store and rate limits")
		memory := cache.NewMemoryCache(cacheCfg)
		defer memory.Close()
		results = memory
	}

	limiter := ratelimit.FromConfig(cfg)
	defer limiter.Close()

	svc := service.New(cfg, results, limiter, log)

	uploads, err := upload.NewStore(cfg.Server.GetTempDir(), cfg.Server.GetMaxUploadSize(), cfg.Server.GetMaxFiles())
	if err != nil {
		log.Error("failed to create upload store", "error", err)
		os.Exit(1)
	}

	q := queue.New(queue.Options{
		Config:  cfg.Queue,
		Store:   jobs,
		Results: results,
		Handler: server.JobHandler(svc),
		Logger:  log.With("component", "queue"),
		Timeout: func(op string) time.Duration {
			return cfg.GetConfigForOperation(op).GetTimeout()
		},
	})

	srv, err := server.New(server.Options{
		Config:   cfg,
		Service:  svc,
		Queue:    q,
		Uploads:  uploads,
		Logger:   log,
		LogLevel: level.SlogLevel(),
		Redis:    redisClient,
		Version:  version,
	})
	if err != nil {
		log.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	serveErr := srv.StartWithShutdown(ctx, addr)

	drainCtx, drainCancel := context.WithTimeout(context.Background(), queueShutdownTimeout)
	defer drainCancel()
	if err := q.Close(drainCtx); err != nil {
		log.Warn("job queue did not drain", "error", err)
	}

	if serveErr != nil {
		log.Error("server error", "error", serveErr)
		os.Exit(1)
	}
	log.Info("server shutdown complete")
}

// cacheConfig derives the result cache settings from the service config.
func cacheConfig(cfg *config.Config) cache.Config {
	cacheCfg := cache.DefaultConfig()
	if cfg.Cache.TTL > 0 {
		cacheCfg.TTL = cfg.Cache.TTL
	}
	cacheCfg.MaxEntrySize = int(cfg.Cache.GetMaxEntrySize())
	return cacheCfg
}

// applyEnv overrides file settings with environment variables.
func applyEnv(cfg *config.Config, log logger.Logger) {
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("TEMP_DIR"); v != "" {
		cfg.Server.TempDir = v
	}
	if v := os.Getenv("STATIC_DIR"); v != "" {
		cfg.Server.StaticDir = v
	}
	if v := os.Getenv("CORS_ORIGIN"); v != "" {
		cfg.Server.CORSOrigin = v
	}
	if v := os.Getenv("MAX_UPLOAD_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			log.Warn("ignoring invalid MAX_UPLOAD_SIZE", "value", v)
		} else {
			cfg.Server.MaxUploadSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Warn("ignoring invalid MAX_CONNECTIONS", "value", v)
		} else {
			cfg.Server.MaxConnections = n
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
