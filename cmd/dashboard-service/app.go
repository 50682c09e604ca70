package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.mongodb.org/mongo-driver/mongo"

	"tierguard/internal/audit"
	"tierguard/internal/config"
	"tierguard/internal/constants"
	"tierguard/internal/dashboard"
	"tierguard/internal/documents"
	"tierguard/internal/logger"
	"tierguard/internal/notes"
	"tierguard/internal/platform/reddit"
	"tierguard/pkg/bootstrap"
	"tierguard/pkg/health"
	"tierguard/pkg/metrics"
	"tierguard/pkg/middleware"
	"tierguard/pkg/ratelimit"
	"tierguard/pkg/tracing"
)

type App struct {
	config         *config.Config
	logger         logger.Logger
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	mongoClient    *mongo.Client
	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceDashboard)
	}
	return &App{
		config:      cfg,
		logger:      log,
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.config.Tracing, constants.ServiceDashboard)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := a.initRouter(ctx); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.initServer()
	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	if db == nil {
		return fmt.Errorf("dashboard requires a PostgreSQL connection")
	}
	a.db = db

	if a.config.Documents.Backend != constants.BackendMongoDB {
		return nil
	}
	initCtx, cancel := context.WithTimeout(ctx, constants.DashboardInitTimeout)
	defer cancel()

	mc, err := a.dbConnector.InitMongoDB(initCtx)
	if err != nil {
		return err
	}
	a.mongoClient = mc
	return nil
}

func (a *App) initRouter(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceDashboard))
	}

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())

	if a.config.Dashboard.RateLimit.Enabled {
		rateLimitConfig := ratelimit.FromConfig(a.config.Dashboard.RateLimit)
		router.Use(ratelimit.Middleware(ctx, rateLimitConfig))
		a.logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	docs, err := documents.New(a.config.Documents, a.dbConnector.MongoDatabase(a.mongoClient))
	if err != nil {
		return err
	}

	opts := []dashboard.Option{
		dashboard.WithPageSize(a.config.Dashboard.PageSize),
		dashboard.WithLocation(time.Local),
		dashboard.WithDocumentNames(a.config.Moderation.RulesDocument, a.config.Moderation.TiersDocument),
	}
	if hasCredentials(a.config.Platform) {
		client := reddit.NewClient(a.config.Platform, a.config.Moderation.Community, a.logger)
		opts = append(opts, dashboard.WithModTools(client))
		metrics.RegisterPlatformMetrics()
	} else {
		a.logger.WarnwCtx(ctx, "Platform credentials missing, manual moderation actions are disabled")
	}

	svc := dashboard.NewService(audit.NewRepository(a.db), notes.NewRepository(a.db), docs, a.logger, opts...)

	api := router.Group("")
	if a.config.Dashboard.AuthToken != "" {
		api.Use(middleware.BearerAuth(a.config.Dashboard.AuthToken))
	} else {
		a.logger.WarnwCtx(ctx, "Dashboard auth token not set, API is unauthenticated")
	}
	dashboard.NewHandler(svc, a.logger).RegisterRoutes(api)

	metrics.RegisterDashboardMetrics()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	if a.mongoClient != nil {
		healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))
	}

	router.GET("/health", healthRegistry.Handler())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
	return nil
}

func hasCredentials(cfg config.PlatformConfig) bool {
	return cfg.ClientID != "" && cfg.ClientSecret != "" && cfg.Username != "" && cfg.Password != ""
}

func (a *App) initServer() {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.config.Server.WriteTimeoutSeconds,
	}
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		a.logger.InfowCtx(ctx, "Server listening", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return a.Shutdown(context.WithoutCancel(ctx))
	case err := <-errChan:
		return err
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	errs = append(errs, a.dbConnector.ShutdownDatabases(shutdownCtx, nil, a.db, a.mongoClient)...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	a.logger.InfowCtx(ctx, "Server exited successfully")
	return nil
}
