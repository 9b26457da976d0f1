package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"trektrace/internal/api"
	"trektrace/internal/config"
	"trektrace/internal/logging"
	"trektrace/internal/metrics"
	"trektrace/internal/model"
	"trektrace/internal/postgres"
	"trektrace/internal/redis"
	"trektrace/internal/service/changefeed"
	"trektrace/internal/service/gpx"
	"trektrace/internal/service/hike"
	"trektrace/internal/service/location"
	"trektrace/internal/service/storage"
	"trektrace/internal/service/syncer"
	"trektrace/internal/service/tracking"
	"trektrace/internal/worker"
)

type connections struct {
	db    *gorm.DB
	redis *goredis.Client
}

type services struct {
	feed     *changefeed.Hub
	provider *location.PushProvider
	hikes    *hike.Service
	gpx      *gpx.Service
	sync     *syncer.Service
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, zap.String("service", "trektrace"))
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conns, store, err := initializeDatabaseAndCache(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer closeConnections(conns, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(reg)

	svc := initializeServices(cfg, conns, store, recorder, logger)
	defer svc.feed.Close()

	workers := worker.StartAllWorkers(ctx, cfg, svc.sync, logger)

	runAPIServer(ctx, cfg, svc, recorder, reg, logger)

	// The session may still hold a delivery registration.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := svc.hikes.StopTracking(shutdownCtx); err != nil && !errors.Is(err, model.ErrNoActiveSession) {
		logger.Warn("failed to stop tracking session", zap.Error(err))
	}
	workers.Wait()
	logger.Info("shutdown complete")
}

func initializeDatabaseAndCache(ctx context.Context, cfg config.Config, logger *zap.Logger) (connections, storage.Store, error) {
	var conns connections
	var store storage.Store

	switch cfg.DBDriver {
	case "memory":
		logger.Warn("using in-memory storage, hikes are lost on restart")
		store = storage.NewMemoryStore()
	default:
		db, err := postgres.Open(cfg.DBDriver, cfg.DBUrl, logger)
		if err != nil {
			return conns, nil, err
		}
		conns.db = db
		store = postgres.NewStore(db)
	}

	client, err := redis.Connect(ctx, cfg.RedisUrl, logger)
	if err != nil {
		closeConnections(conns, logger)
		return connections{}, nil, err
	}
	conns.redis = client
	return conns, store, nil
}

func initializeServices(cfg config.Config, conns connections, store storage.Store, recorder metrics.Recorder, logger *zap.Logger) *services {
	feed := changefeed.NewHub(conns.redis, logger)
	observed := storage.NewObservedStore(store, feed)

	// The device grants permissions through the API.
	provider := location.NewPushProvider(false, false)

	opts := tracking.DefaultOptions()
	opts.Motion.MovementThreshold = cfg.MovementThresholdM
	opts.Motion.RestThreshold = cfg.RestThreshold
	opts.Location.Interval = cfg.LocationInterval
	opts.Location.Distance = cfg.LocationDistanceM
	opts.Location.DeferredInterval = cfg.LocationDeferredInterval
	session := tracking.NewSession(provider, observed, logger, recorder, opts)

	hikes := hike.NewService(observed, session, provider, feed, logger)

	var conn syncer.Connectivity = syncer.NewSwitch(true)
	if cfg.RemoteUrl != "" {
		conn = syncer.NewProbe(cfg.RemoteUrl)
	}

	return &services{
		feed:     feed,
		provider: provider,
		hikes:    hikes,
		gpx:      gpx.NewService(hikes, logger),
		sync:     syncer.NewService(hikes, syncer.NewMemoryRemote(), conn, recorder, logger),
	}
}

func runAPIServer(ctx context.Context, cfg config.Config, svc *services, recorder metrics.Recorder, reg *prometheus.Registry, logger *zap.Logger) {
	gin.SetMode(gin.ReleaseMode)

	router := api.NewRouter(api.Dependencies{
		Hikes:    svc.hikes,
		GPX:      svc.gpx,
		Sync:     svc.sync,
		Provider: svc.provider,
		Recorder: recorder,
		Gatherer: reg,
		Logger:   logger,
		Info: map[string]string{
			"port":      cfg.Port,
			"db_driver": cfg.DBDriver,
			"redis":     redisMode(cfg.RedisUrl),
		},
	})

	srv := &http.Server{
		Addr:    cfg.Port,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received, stopping API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("API server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("API server listening", zap.String("addr", cfg.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("API server stopped", zap.Error(err))
	}
}

func redisMode(url string) string {
	if url == "" {
		return "disabled"
	}
	return "enabled"
}

func closeConnections(conns connections, logger *zap.Logger) {
	if err := postgres.Close(conns.db); err != nil {
		logger.Error("error closing database connection", zap.Error(err))
	}

	if err := redis.Close(conns.redis); err != nil {
		logger.Error("error closing Redis connection", zap.Error(err))
	}

	logger.Info("connections closed")
}
