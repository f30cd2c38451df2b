package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pledgepay/config"
	"pledgepay/internal/handler"
	"pledgepay/internal/middleware"
	"pledgepay/internal/redis"
	"pledgepay/internal/transport/httpdto"
	"pledgepay/pkg/database"
	"pledgepay/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Payment *handler.PaymentHandler
	Account *handler.AccountHandler
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	switch cfg.Server.Environment {
	case ReleaseMode, "production":
		gin.SetMode(gin.ReleaseMode)
	case TestMode:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
			Handler: engine,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

func (s *Server) SetupRoutes(handlers *Handlers, limiter *redis.RateLimiter) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if err := database.HealthCheck(); err != nil {
			c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	payments := s.engine.Group("/v1/payments")
	{
		payments.POST("/process", middleware.SubmissionRateLimitMiddleware(limiter), handlers.Payment.Process)
		payments.GET("/:paymentId", middleware.QueryRateLimitMiddleware(limiter), handlers.Payment.Get)
	}

	s.engine.GET("/v1/pledges/:pledgeId/payment", middleware.QueryRateLimitMiddleware(limiter), handlers.Payment.GetByPledge)

	accounts := s.engine.Group("/v1/accounts")
	{
		accounts.GET("/:email", middleware.QueryRateLimitMiddleware(limiter), handlers.Account.Get)
		accounts.POST("/:email/add-funds", handlers.Account.AddFunds)
		accounts.GET("/:email/transactions", middleware.QueryRateLimitMiddleware(limiter), handlers.Account.ListTransactions)
	}

	s.engine.GET("/v1/outbox/stats", handlers.Payment.OutboxStats)
}

func (s *Server) Start() error {
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.Server.Port)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Errorf("Error in starting the server: %s", err)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	if s.logger != nil {
		s.logger.Infof("Server is running on :%s", s.config.Server.Port)
	}

	<-quit

	if s.logger != nil {
		s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		if s.logger != nil {
			s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}

	return nil
}
