package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter wires middleware and every route onto a fresh gin engine.
func NewRouter(cfg HandlerConfig) *gin.Engine {
	cfg.defaults()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestContext(cfg.Logger))
	r.Use(Session(cfg.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	RegisterCheckoutRoutes(r, cfg)
	RegisterBookingRoutes(r, cfg)
	return r
}
