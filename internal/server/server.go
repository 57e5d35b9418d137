package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/zhejian/url-shortener/shortlink/internal/api"
	"github.com/zhejian/url-shortener/shortlink/internal/config"
	"github.com/zhejian/url-shortener/shortlink/internal/events"
	"github.com/zhejian/url-shortener/shortlink/internal/middleware"
	"github.com/zhejian/url-shortener/shortlink/internal/repository"
	"github.com/zhejian/url-shortener/shortlink/internal/service"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// redisPinger adapts *redis.Client to api.Pinger.
type redisPinger struct{ client *redis.Client }

func (r *redisPinger) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Deps are the long-lived resources the router is built on. Publisher and
// MetricsHandler are optional.
type Deps struct {
	DB             *pgxpool.Pool
	Cache          *redis.Client
	Publisher      events.Publisher
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// NewLinkService wires the repositories into the link service.
func NewLinkService(cfg *config.Config, deps Deps) *service.LinkService {
	store := repository.NewCachedLinkRepository(
		repository.NewLinkRepository(deps.DB), deps.Cache, cfg.Cache.TTL, deps.Logger)

	opts := []service.Option{}
	if deps.Publisher != nil {
		opts = append(opts, service.WithPublisher(deps.Publisher))
	}

	return service.NewLinkService(store,
		repository.NewClickRecorder(deps.DB),
		repository.NewAnalyticsReader(deps.DB),
		deps.Logger,
		service.Config{
			BaseURL:           cfg.App.BaseURL,
			AliasLength:       cfg.App.AliasLength,
			AliasRetries:      cfg.App.AliasRetries,
			RecentClicksLimit: cfg.App.RecentClicksLimit,
		},
		opts...)
}

// NewRouter initializes all dependencies and returns a configured Gin router.
// This is useful for testing where you don't need the full HTTP server.
func NewRouter(cfg *config.Config, deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Observability.ServiceName))
	router.Use(middleware.Metrics())
	router.Use(middleware.Logging(deps.Logger))
	if len(cfg.Server.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: cfg.Server.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	handler := api.NewHandler(NewLinkService(cfg, deps), deps.DB, &redisPinger{client: deps.Cache}, deps.Logger)
	handler.RegisterRoutes(router)
	return router
}

// NewServer initializes all dependencies and returns a configured HTTP server.
// This includes the router plus HTTP server settings (timeouts, address, etc.).
func NewServer(cfg *config.Config, deps Deps) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      NewRouter(cfg, deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
}
