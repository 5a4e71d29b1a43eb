package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/mamadbah2/refill/internal/server/handlers"
)

// New wires the Gin engine with required routes and middlewares.
func New(visit *handlers.VisitHandler, delivery *handlers.DeliveryHandler, catalog *handlers.CatalogHandler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.Use(repIdentityMiddleware())

	api.POST("/visits", visit.Start)
	api.GET("/visits", visit.List)
	api.GET("/visits/:id", visit.Get)
	api.PATCH("/visits/:id/note", visit.Note)
	api.POST("/visits/:id/submit", visit.Submit)

	api.POST("/deliveries", delivery.Create)
	api.GET("/deliveries", delivery.List)
	api.GET("/deliveries/:id", delivery.Get)
	api.PATCH("/deliveries/:id", delivery.Patch)

	api.GET("/items", catalog.Items)
	api.GET("/locations", catalog.Locations)
	api.GET("/boxes", catalog.Boxes)

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

// repIdentityMiddleware resolves the authenticated rep from the X-Rep-ID
// header the fronting auth layer sets. Session issuance and role gating live
// upstream; this core only consumes the identity.
func repIdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-Rep-ID")
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
			return
		}
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid identity"})
			return
		}
		c.Set(handlers.RepIDKey, id)
		c.Next()
	}
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
