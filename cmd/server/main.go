// Command server wires every coordinator collaborator together and serves
// the websocket signaling endpoint. Structurally grounded on the teacher's
// cmd/v1/session/main.go (env loading, gin+CORS setup, /metrics, graceful
// shutdown); its per-handler Hub and the auth/session packages it imports
// are replaced with this module's room/signaling/transport stack.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/huddlecore/signaling/internal/v1/bus"
	"github.com/huddlecore/signaling/internal/v1/config"
	"github.com/huddlecore/signaling/internal/v1/health"
	"github.com/huddlecore/signaling/internal/v1/identity"
	"github.com/huddlecore/signaling/internal/v1/logging"
	"github.com/huddlecore/signaling/internal/v1/middleware"
	"github.com/huddlecore/signaling/internal/v1/ratelimit"
	"github.com/huddlecore/signaling/internal/v1/room"
	"github.com/huddlecore/signaling/internal/v1/sfu"
	"github.com/huddlecore/signaling/internal/v1/signaling"
	"github.com/huddlecore/signaling/internal/v1/tracing"
	"github.com/huddlecore/signaling/internal/v1/transport"
	"github.com/huddlecore/signaling/internal/v1/webinar"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	otelgin "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const serviceName = "huddlecore-signaling"

func main() {
	envPaths := []string{".env", "../../.env", "../.env"}
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logging:", err)
		os.Exit(1)
	}

	ctx := context.Background()

	tp, err := tracing.InitTracer(ctx, serviceName, os.Getenv("OTEL_COLLECTOR_ADDR"))
	if err != nil {
		logging.Fatal(ctx, "failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	var redisService *bus.Service
	if cfg.RedisEnabled {
		redisService, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logging.Fatal(ctx, "failed to connect to redis", zap.Error(err))
		}
		defer redisService.Close()
	}

	var validator transport.TokenValidator
	if cfg.SkipAuth {
		logging.Warn(ctx, "authentication disabled (SKIP_AUTH=true) — do not use in production")
		validator = &identity.MockValidator{}
	} else {
		if cfg.Auth0Domain == "" || cfg.Auth0Audience == "" {
			logging.Fatal(ctx, "AUTH0_DOMAIN and AUTH0_AUDIENCE must be set when SKIP_AUTH=false")
		}
		v, err := identity.NewValidator(ctx, cfg.Auth0Domain, cfg.Auth0Audience)
		if err != nil {
			logging.Fatal(ctx, "failed to create auth validator", zap.Error(err))
		}
		validator = v
	}

	registry := room.NewRegistry(room.Config{
		DisconnectGraceMs: cfg.DisconnectGraceMs,
		RoomEmptyGraceMs:  cfg.RoomEmptyGraceMs,
		QualityCliffSize:  cfg.QualityCliffSize,
		WebinarMaxAttend:  cfg.WebinarMaxAttendees,
	})

	sfuClient := sfu.NewClient("http://" + cfg.RustSFUAddr)
	defer sfuClient.Close()

	minter := webinar.NewMinter(cfg.WebinarLinkSecret, 0)

	deps := &signaling.Deps{
		Registry:      registry,
		SFU:           sfuClient,
		WebinarMinter: minter,
		Policies:      identity.PolicyTable{},
		BaseURL:       os.Getenv("PUBLIC_BASE_URL"),
	}

	router := signaling.NewRouter()

	var redisClient = redisService.Client()
	rateLimiter, err := ratelimit.NewRateLimiter(cfg, redisClient)
	if err != nil {
		logging.Fatal(ctx, "failed to construct rate limiter", zap.Error(err))
	}

	allowedOrigins := identity.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})

	hub := transport.NewHub(router, deps, validator, rateLimiter, allowedOrigins, cfg.DevelopmentMode)

	healthHandler := health.NewHandler(redisService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middleware.CorrelationID())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = allowedOrigins
	r.Use(cors.New(corsConfig))

	r.Use(rateLimiter.GlobalMiddleware())

	r.GET("/ws", hub.ServeWs)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "healthy"}) })
	r.GET("/health/live", healthHandler.Liveness)
	r.GET("/health/ready", healthHandler.Readiness)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logging.Info(ctx, "signaling server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down signaling server")

	hub.Shutdown(registry)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "server forced to shutdown", zap.Error(err))
	}

	logging.Info(ctx, "server exiting")
}
