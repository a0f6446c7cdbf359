package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/provisioning/internal/server/handlers"
)

// New wires the Gin engine with required routes and middlewares.
func New(substitutions *handlers.SubstitutionHandler, catalog *handlers.CatalogHandler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(handlers.RequestID())
	r.Use(zapLoggerMiddleware(logger))

	subs := r.Group("/substitutions")
	{
		subs.GET("/for-review", substitutions.ForReview)
		subs.GET("/for-coordination", substitutions.ForCoordination)
		subs.GET("/summary", substitutions.Summary)
		subs.GET("/consumption-week", substitutions.ConsumptionWeek)
		subs.GET("/generic-products", substitutions.GenericProducts)
		subs.GET("/route-types", substitutions.RouteTypes)
		subs.GET("/routes", substitutions.Routes)
		subs.GET("/groups", substitutions.Groups)
		subs.POST("", substitutions.Create)
		subs.GET("/:id", substitutions.Get)
		subs.POST("/:id/promote", substitutions.Promote)
		subs.POST("/:id/deactivate", substitutions.Deactivate)
	}

	r.POST("/catalog/cache/flush", catalog.FlushCache)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("request_id", c.GetString(handlers.RequestIDKey)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
