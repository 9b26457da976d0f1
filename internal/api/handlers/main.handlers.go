package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupMainHandlers registers the service info, health and metrics endpoints.
func SetupMainHandlers(router *gin.RouterGroup, info map[string]string, gatherer prometheus.Gatherer) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, info)
	})

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}
