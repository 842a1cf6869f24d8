package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/sma-presence-api/api/swagger"
	"github.com/noah-isme/sma-presence-api/internal/handler"
	"github.com/noah-isme/sma-presence-api/internal/middleware"
	"github.com/noah-isme/sma-presence-api/internal/models"
	"github.com/noah-isme/sma-presence-api/internal/realtime"
	"github.com/noah-isme/sma-presence-api/internal/repository"
	"github.com/noah-isme/sma-presence-api/internal/service"
	"github.com/noah-isme/sma-presence-api/internal/timeslot"
	"github.com/noah-isme/sma-presence-api/pkg/cache"
	"github.com/noah-isme/sma-presence-api/pkg/config"
	"github.com/noah-isme/sma-presence-api/pkg/database"
	"github.com/noah-isme/sma-presence-api/pkg/logger"
	reqidmiddleware "github.com/noah-isme/sma-presence-api/pkg/middleware/requestid"
)

// @title SMA Presence API
// @version 1.0.0
// @description Proximity attendance sessions, class registry and attendance records
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	periods, err := timeslot.ParseTable(cfg.Periods.Table)
	if err != nil {
		return fmt.Errorf("period table: %w", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, "presence:registry", logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled)

	userRepo := repository.NewUserRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	registrySvc := service.NewRegistryService(scheduleRepo, periods, cacheSvc, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, metrics, logr)
	manager := service.NewSessionManager(sessionRepo, attendanceRepo, registrySvc, metrics, validate, logr, service.SessionManagerConfig{
		SignalThresholdEnabled: cfg.Sessions.SignalThresholdEnabled,
		SignalThreshold:        cfg.Sessions.SignalThresholdDBM,
	})
	defer manager.Shutdown()
	archiver := service.NewSessionArchiver(manager, cfg.Sessions.ArchiveCron, cfg.Sessions.ArchiveRetention, logr)

	hub := realtime.NewHub(metrics, logr)
	manager.SetNotifier(hub)

	var relay *realtime.RedisRelay
	if cfg.Realtime.RelayEnabled {
		relay = realtime.NewRedisRelay(redisClient, cfg.Realtime.ChannelPrefix, logr)
		hub.SetPublisher(relay)
		relay.Start(ctx)
		defer relay.Stop()
	}

	var source realtime.PresenceSource
	if cfg.Realtime.PresenceSource == config.PresenceSourceSimulator {
		source = realtime.NewSimulatedSource(cfg.Realtime.SimulatorDelay, logr)
	}

	engine := realtime.NewEngine(manager, periods, authSvc, hub, source, metrics, logr, realtime.EngineConfig{
		SendBuffer:     cfg.Realtime.SendBuffer,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})
	defer engine.Close()

	if _, err := manager.Restore(ctx); err != nil {
		return fmt.Errorf("restore sessions: %w", err)
	}

	var cacheProbe handler.Probe
	if redisClient != nil {
		cacheProbe = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	router := newRouter(cfg, logr, routes{
		auth:       handler.NewAuthHandler(authSvc),
		metrics:    handler.NewMetricsHandler(metrics, db.PingContext, cacheProbe),
		timeslots:  handler.NewTimeslotHandler(periods),
		schedules:  handler.NewScheduleHandler(registrySvc),
		sessions:   handler.NewSessionHandler(manager, registrySvc),
		attendance: handler.NewAttendanceHandler(attendanceSvc),
		validator:  authSvc,
		metricsSvc: metrics,
		ws:         engine.Handler(),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		engine.Close()
		logr.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return archiver.Run(gctx)
	})
	if relay != nil {
		g.Go(func() error {
			if err := relay.Run(gctx, hub); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, redis.ErrClosed) {
				return fmt.Errorf("realtime relay: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

type routes struct {
	auth       *handler.AuthHandler
	metrics    *handler.MetricsHandler
	timeslots  *handler.TimeslotHandler
	schedules  *handler.ScheduleHandler
	sessions   *handler.SessionHandler
	attendance *handler.AttendanceHandler
	validator  middleware.TokenValidator
	metricsSvc *service.MetricsService
	ws         http.Handler
}

func newRouter(cfg *config.Config, logr *zap.Logger, h routes) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(h.metricsSvc))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)
	r.GET("/ws", gin.WrapH(h.ws))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	staff := middleware.RequireRoles(models.RoleFaculty, models.RoleAdmin)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", h.auth.Login)

	secured := api.Group("")
	secured.Use(middleware.JWT(h.validator))
	secured.GET("/auth/me", h.auth.Me)
	secured.POST("/users", adminOnly, h.auth.CreateAccount)

	secured.GET("/timeslots", h.timeslots.List)
	secured.GET("/timeslots/resolve", h.timeslots.Resolve)
	secured.GET("/timeslots/:number", h.timeslots.Period)

	secured.GET("/schedules", h.schedules.Section)
	secured.PUT("/schedules", adminOnly, h.schedules.Replace)
	secured.DELETE("/schedules", adminOnly, h.schedules.Archive)
	secured.GET("/faculty/:id/classes", middleware.SelfOr("id", models.RoleAdmin), h.schedules.FacultyClasses)
	secured.GET("/classes/:id", h.schedules.Class)
	secured.GET("/classes/:id/roster", staff, h.schedules.Roster)

	sessions := secured.Group("/sessions", staff)
	sessions.POST("", h.sessions.Start)
	sessions.GET("", h.sessions.List)
	sessions.GET("/:id", h.sessions.Get)
	sessions.DELETE("/:id", adminOnly, h.sessions.Archive)
	sessions.POST("/:id/stop", h.sessions.Stop)
	sessions.POST("/:id/cancel", h.sessions.Cancel)
	sessions.POST("/:id/attendance", h.sessions.Mark)
	sessions.GET("/:id/devices", h.sessions.Devices)

	secured.GET("/attendance", staff, h.attendance.List)
	secured.GET("/attendance/export", staff, h.attendance.Export)
	secured.POST("/attendance/import", adminOnly, h.attendance.Import)
	secured.GET("/students/:id/attendance", middleware.SelfOr("id", models.RoleFaculty, models.RoleAdmin), h.attendance.Student)

	return r
}
