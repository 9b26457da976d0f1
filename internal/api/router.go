package api

import (
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	routes "trektrace/internal/api/handlers"
	"trektrace/internal/metrics"
	"trektrace/internal/service/gpx"
	"trektrace/internal/service/hike"
	"trektrace/internal/service/location"
	"trektrace/internal/service/syncer"
)

// Dependencies are the services the HTTP surface is built on.
type Dependencies struct {
	Hikes    *hike.Service
	GPX      *gpx.Service
	Sync     *syncer.Service
	Provider *location.PushProvider
	Recorder metrics.Recorder
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
	Info     map[string]string
}

// NewRouter creates the gin engine with logging, recovery and metrics middleware.
func NewRouter(deps Dependencies) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Recorder == nil {
		deps.Recorder = metrics.Noop()
	}

	r := gin.New()
	r.Use(ginzap.GinzapWithConfig(deps.Logger, &ginzap.Config{
		UTC:        true,
		TimeFormat: time.RFC3339,
		SkipPaths:  []string{"/healthz", "/metrics"},
		Context:    requestFields,
	}))
	r.Use(ginzap.RecoveryWithZap(deps.Logger, true))
	r.Use(MetricsMiddleware(deps.Recorder))

	SetupRouter(r, deps)
	return r
}

// SetupRouter initializes all application routes
func SetupRouter(r *gin.Engine, deps Dependencies) {
	// API group
	api := r.Group("/api")

	// Setup main handlers
	routes.SetupMainHandlers(r.Group(""), deps.Info, deps.Gatherer)

	session := routes.NewSessionHandlers(deps.Hikes, deps.Provider, deps.Logger)
	routes.SetupSessionHandlers(api, session)

	hikes := routes.NewHikeHandlers(deps.Hikes, deps.GPX, deps.Sync, deps.Logger)
	routes.SetupHikeHandlers(api, hikes, session.Start)
}
