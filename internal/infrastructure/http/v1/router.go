// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lotledger/internal/domain/lotops"
	"lotledger/internal/infrastructure/http/v1/handlers"
	"lotledger/internal/infrastructure/http/v1/middleware"
	"lotledger/internal/infrastructure/storage/postgres"
	"lotledger/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Pool is the database pool (for health checks)
	Pool *postgres.Pool

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// Ops is the facade over lots, movements, valuation and reconciliation
	Ops *lotops.Facade

	// Auditor serves lot change history
	Auditor *postgres.LotAuditor

	// IdempotencyStore enables replay protection when non-nil
	IdempotencyStore *postgres.IdempotencyStore
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.Metrics())
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	baseHandler := handlers.NewBaseHandler()
	lotsHandler := handlers.NewLotsHandler(baseHandler, cfg.Ops, cfg.Auditor)
	movementsHandler := handlers.NewMovementsHandler(baseHandler, cfg.Ops)
	valuationHandler := handlers.NewValuationHandler(baseHandler, cfg.Ops)
	reconcileHandler := handlers.NewReconcileHandler(baseHandler, cfg.Ops)

	// API v1 (JWT required; idempotency on mutating operations)
	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.JWTValidator))
	if cfg.IdempotencyStore != nil {
		v1.Use(middleware.Idempotency(cfg.IdempotencyStore))
	}
	{
		lots := v1.Group("/lots")
		{
			lots.POST("", lotsHandler.Create)
			lots.GET("/expiring", lotsHandler.Expiring)
			lots.POST("/bulk", lotsHandler.Bulk)
			lots.GET("/:id", lotsHandler.Get)
			lots.PUT("/:id/quantity", lotsHandler.UpdateQuantity)
			lots.GET("/:id/verify", movementsHandler.Verify)
			lots.GET("/:id/audit", lotsHandler.History)
		}

		movements := v1.Group("/movements")
		{
			movements.POST("", movementsHandler.Record)
		}

		products := v1.Group("/products")
		{
			products.GET("/:id/lots", lotsHandler.ListByProduct)
			products.POST("/:id/lots/ensure", reconcileHandler.EnsureLots)
			products.GET("/:id/movements", movementsHandler.ListByProduct)
			products.GET("/:id/valuation", valuationHandler.Valuation)
			products.GET("/:id/valuation/cost", valuationHandler.AverageCost)
			products.GET("/:id/valuation/settings", valuationHandler.GetSettings)
			products.PUT("/:id/valuation/settings", valuationHandler.SetSettings)
			products.POST("/:id/stock/adjust", reconcileHandler.AdjustStock)
			products.POST("/:id/stock/sync", reconcileHandler.SyncStock)
		}

		stock := v1.Group("/stock")
		{
			stock.POST("/sync", reconcileHandler.SyncAllStocks)
			stock.POST("/ensure-lots", reconcileHandler.EnsureAllLots)
			stock.POST("/migrate", middleware.RequireRole("admin"), reconcileHandler.Migrate)
		}
	}

	return router
}
