package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fortimind/subscriptions/internal/auth"
	"github.com/fortimind/subscriptions/internal/config"
	"github.com/fortimind/subscriptions/internal/observability"
	obsmiddleware "github.com/fortimind/subscriptions/internal/observability/logger"
	obsmetrics "github.com/fortimind/subscriptions/internal/observability/metrics"
	obstracing "github.com/fortimind/subscriptions/internal/observability/tracing"
	"github.com/fortimind/subscriptions/internal/ratelimit"
	"github.com/fortimind/subscriptions/internal/subscription"
	subscriptiondomain "github.com/fortimind/subscriptions/internal/subscription/domain"
	"github.com/fortimind/subscriptions/internal/webhook"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	auth.Module,
	ratelimit.Module,
	subscription.Module,
	webhook.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	tokens          auth.TokenVerifier
	subscriptionSvc subscriptiondomain.Service
	webhookSvc      *webhook.Service
	webhookLimiter  *ratelimit.WebhookLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Tokens          auth.TokenVerifier
	SubscriptionSvc subscriptiondomain.Service
	WebhookSvc      *webhook.Service
	WebhookLimiter  *ratelimit.WebhookLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		log:             p.Log.Named("server"),
		genID:           p.GenID,
		tokens:          p.Tokens,
		subscriptionSvc: p.SubscriptionSvc,
		webhookSvc:      p.WebhookSvc,
		webhookLimiter:  p.WebhookLimiter,
	}

	svc.registerRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.POST("/webhook", s.WebhookRateLimit(), s.HandleBillingWebhook)
	s.engine.POST("/subscription-status", s.GetSubscriptionStatus)
	s.engine.POST("/subscription-status/update", s.UpdateSubscriptionStatus)
}
