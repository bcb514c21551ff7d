package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/cache"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/controller"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/metrics"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/repository"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/service"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/types"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server along with the webhook retry scheduler.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type services struct {
	cfg       *config.Config
	orders    *service.OrderService
	webhooks  *service.WebhookService
	ledger    *service.Ledger
	scheduler *service.RetryScheduler
	counters  *metrics.Counters
}

func runServe(_ *cobra.Command, _ []string) {
	svcs, cleanup := mustCreateServices()
	defer cleanup()

	orderController := controller.NewOrderController(svcs.orders, svcs.counters, svcs.cfg.App.ServiceName)
	webhookController := controller.NewWebhookController(svcs.webhooks)

	e := setupHTTPServer(orderController, webhookController)

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	go svcs.scheduler.Run(schedulerCtx)

	go func() {
		httpAddr := net.JoinHostPort(svcs.cfg.HTTP.Host, svcs.cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	stopScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(
	orderController *controller.OrderController,
	webhookController *controller.WebhookController,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/health", orderController.Health)
	e.GET("/metrics", orderController.Metrics)

	orders := e.Group("/orders", requireIdentity())
	orders.POST("", orderController.CreateOrder)
	orders.GET("", orderController.ListOrders)
	orders.GET("/:id", orderController.GetOrder)
	orders.PATCH("/:id/status", orderController.UpdateOrderStatus)

	payments := e.Group("/payments")
	payments.POST("/initiate", orderController.InitiatePayment, requireIdentity())
	payments.POST("/webhook", webhookController.HandleWebhook)

	webhooks := e.Group("/webhooks")
	webhooks.GET("/dead-letters", webhookController.ListDeadLetters, requireIdentity())

	return e
}

// requireIdentity rejects requests without the gateway's forwarded identity
// headers. The webhook endpoint is excluded; it authenticates by signature.
func requireIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if !types.IdentityFromContext(ctx).Authenticated() {
				return ctx.JSON(http.StatusUnauthorized, &types.ErrorResponse{
					Code:    "UNAUTHENTICATED",
					Message: "identity headers are required",
				})
			}
			return next(ctx)
		}
	}
}

func mustCreateServices() (*services, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	orderRepo := repository.NewOrderRepository(db)
	eventRepo := repository.NewOrderEventRepository(db)
	idempotencyRepo := repository.NewIdempotencyRepository(db)
	deadLetterRepo := repository.NewDeadLetterRepository(db)

	counters := metrics.NewCounters()
	orderCache := cache.NewOrderCache(cfg.Cache.TTL)
	ledger := service.NewLedger(idempotencyRepo, cfg.Idempotency)

	orderService := service.NewOrderService(orderRepo, eventRepo, ledger, orderCache, counters, cfg.Orders)
	scheduler := service.NewRetryScheduler(deadLetterRepo, cfg.Retry, counters)
	webhookService := service.NewWebhookService(orderService, ledger, scheduler, deadLetterRepo, cfg.Webhook, counters)

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return &services{
		cfg:       cfg,
		orders:    orderService,
		webhooks:  webhookService,
		ledger:    ledger,
		scheduler: scheduler,
		counters:  counters,
	}, cleanup
}
