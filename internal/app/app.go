package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/FooledKiwi/route-proxy/internal/config"
	"github.com/FooledKiwi/route-proxy/internal/handler"
	"github.com/FooledKiwi/route-proxy/internal/middleware"
	"github.com/FooledKiwi/route-proxy/internal/routing"
	"github.com/FooledKiwi/route-proxy/internal/service"
	"github.com/FooledKiwi/route-proxy/internal/storage"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	// memoryCacheBytes bounds the in-process cache.
	memoryCacheBytes = 64 << 20

	// purgeInterval is how often expired postgres cache rows are deleted.
	purgeInterval = 10 * time.Minute

	corsMaxAge = 12 * time.Hour
)

// App holds the application-level dependencies.
type App struct {
	Router *gin.Engine
	Log    *logrus.Logger

	cfg     *config.Config
	closers []func()
	stop    context.CancelFunc
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("log_level", cfg.LogLevel).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// New wires all dependencies and configures the HTTP engine with routes.
func New(cfg *config.Config, log *logrus.Logger) (*App, error) {
	bgCtx, stop := context.WithCancel(context.Background())
	a := &App{Log: log, cfg: cfg, stop: stop}

	// --- Directions client ---
	google, err := routing.NewGoogleClient(cfg.GoogleAPIKey,
		routing.WithAPIURL(cfg.DirectionsURL),
		routing.WithLocale(cfg.Language, cfg.Region),
		routing.WithTimeout(cfg.UpstreamTimeout),
		routing.WithMaxAttempts(cfg.UpstreamMaxAttempts),
	)
	if err != nil {
		a.Shutdown()
		return nil, fmt.Errorf("app: directions client: %w", err)
	}

	var client routing.Client = google

	store, err := a.newCacheStore(bgCtx)
	if err != nil {
		a.Shutdown()
		return nil, err
	}
	if store != nil {
		client = routing.NewCachedClient(google, store,
			routing.WithTTL(cfg.CacheTTL),
			routing.WithKeyNamespace(cfg.Language+"|"+cfg.Region),
			routing.WithLogger(log.Warnf),
		)
	}

	log.WithFields(logrus.Fields{
		"cache":         cfg.CacheBackend,
		"response_mode": cfg.ResponseMode,
		"language":      cfg.Language,
		"region":        cfg.Region,
	}).Info("directions client ready")

	routingService := service.NewRoutingService(client)

	// --- HTTP engine ---
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
			http.MethodDelete, http.MethodHead, http.MethodOptions,
		},
		AllowHeaders:  []string{"*"},
		ExposeHeaders: []string{middleware.HeaderRequestID},
		MaxAge:        corsMaxAge,
	}))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Timeout(cfg.RequestTimeout, log))

	router.GET("/health", handler.Health)

	h := handler.New(routingService, log,
		handler.WithSummaryDefault(cfg.ResponseMode == config.ModeSummary),
	)
	router.GET("/route", h.Route)
	router.GET("/route/raw", h.RouteRaw)
	router.GET("/route/summary", h.RouteSummary)

	a.Router = router
	return a, nil
}

// newCacheStore builds the configured CacheStore; nil means caching is off.
func (a *App) newCacheStore(ctx context.Context) (routing.CacheStore, error) {
	switch a.cfg.CacheBackend {
	case config.CacheMemory:
		store, err := routing.NewMemoryCacheStore(memoryCacheBytes)
		if err != nil {
			return nil, fmt.Errorf("app: memory cache: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil

	case config.CacheRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("app: redis ping %s: %w", a.cfg.RedisAddr, err)
		}
		a.Log.WithField("addr", a.cfg.RedisAddr).Info("redis connection established")
		return routing.NewRedisCacheStore(rdb), nil

	case config.CachePostgres:
		pool, err := storage.Connect(ctx, a.cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.Log.Info("database connection pool established")

		if err := storage.RunMigrations(ctx, pool, a.Log); err != nil {
			return nil, fmt.Errorf("app: run migrations: %w", err)
		}

		go a.purgeLoop(ctx, pool)
		return routing.NewPgCacheStore(pool), nil
	}

	return nil, nil
}

// purgeLoop deletes expired cache rows until ctx is cancelled.
func (a *App) purgeLoop(ctx context.Context, pool *pgxpool.Pool) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := storage.PurgeExpiredRoutes(ctx, pool)
			if err != nil {
				a.Log.WithError(err).Warn("route cache purge failed")
				continue
			}
			if n > 0 {
				a.Log.WithField("rows", n).Debug("route cache purged")
			}
		}
	}
}

// Shutdown stops background work and releases caches and connections in
// reverse order of creation.
func (a *App) Shutdown() {
	if a.stop != nil {
		a.stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
