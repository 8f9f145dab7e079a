package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/splitpay/internal/clock"
	"github.com/smallbiznis/splitpay/internal/config"
	obslogger "github.com/smallbiznis/splitpay/internal/observability/logger"
	obstracing "github.com/smallbiznis/splitpay/internal/observability/tracing"
	"github.com/smallbiznis/splitpay/internal/statement"
	"github.com/smallbiznis/splitpay/internal/store"
	"github.com/smallbiznis/splitpay/internal/sweeper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	statement.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, cfg config.Config) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log.Named("http"), obslogger.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine     *gin.Engine
	store      *store.Engine
	sweeper    *sweeper.Service
	statements statement.Renderer
	clock      clock.Clock
	log        *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Store      *store.Engine
	Sweeper    *sweeper.Service
	Statements statement.Renderer
	Clock      clock.Clock
	Log        *zap.Logger
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		store:      p.Store,
		sweeper:    p.Sweeper,
		statements: p.Statements,
		clock:      p.Clock,
		log:        p.Log.Named("http"),
	}

	svc.registerHealthRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerHealthRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		if !s.store.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1")

	orders := api.Group("/orders")
	orders.GET("", listHandler(s.store.Orders, map[string]string{
		"platformId": "byPlatform",
		"status":     "byStatus",
	}))
	orders.POST("", s.CreateOrder)
	orders.GET("/:id", getHandler(s.store.Orders, "id"))
	orders.PUT("/:id", putHandler(s.store.Orders, "id"))
	orders.PATCH("/:id", s.UpdateOrder)
	orders.DELETE("/:id", s.DeleteOrder)
	orders.GET("/:id/statement.pdf", s.OrderStatement)

	payments := api.Group("/payments")
	payments.GET("", listHandler(s.store.Payments, map[string]string{
		"orderId":    "byOrder",
		"platformId": "byPlatform",
		"status":     "byStatus",
	}))
	payments.GET("/:id", getHandler(s.store.Payments, "id"))
	payments.PUT("/:id", putHandler(s.store.Payments, "id"))
	payments.PATCH("/:id", s.UpdatePayment)
	payments.DELETE("/:id", deleteHandler(s.store.Payments, "id"))
	payments.POST("/:id/paid", s.MarkPaymentPaid)
	payments.DELETE("/:id/paid", s.UnmarkPaymentPaid)

	platforms := api.Group("/platforms")
	platforms.GET("", listHandler(s.store.Platforms, nil))
	platforms.POST("", s.AddPlatform)
	platforms.GET("/:id", getHandler(s.store.Platforms, "id"))
	platforms.PUT("/:id", putHandler(s.store.Platforms, "id"))
	platforms.DELETE("/:id", deleteHandler(s.store.Platforms, "id"))
	platforms.POST("/:id/limit", s.RecordLimitChange)

	subscriptions := api.Group("/subscriptions")
	subscriptions.GET("", listHandler(s.store.Subscriptions, nil))
	subscriptions.GET("/:platformId", getHandler(s.store.Subscriptions, "platformId"))
	subscriptions.PUT("/:platformId", putHandler(s.store.Subscriptions, "platformId"))
	subscriptions.DELETE("/:platformId", deleteHandler(s.store.Subscriptions, "platformId"))

	api.GET("/limit-history", listHandler(s.store.LimitHistory, map[string]string{
		"platformId": "byPlatform",
	}))

	api.GET("/dataset", s.Dataset)
	api.GET("/export", s.Export)
	api.POST("/import", s.Import)
	api.POST("/sweep", s.Sweep)
}
