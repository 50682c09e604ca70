package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"tierguard/internal/audit"
	"tierguard/internal/broker"
	"tierguard/internal/config"
	"tierguard/internal/constants"
	"tierguard/internal/documents"
	"tierguard/internal/logger"
	"tierguard/internal/moderation"
	"tierguard/internal/platform"
	"tierguard/internal/platform/reddit"
	"tierguard/internal/rules"
	"tierguard/internal/tiers"
	"tierguard/internal/window"
	"tierguard/pkg/bootstrap"
	"tierguard/pkg/health"
	"tierguard/pkg/metrics"
	"tierguard/pkg/middleware"
	"tierguard/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	rdb            *redis.Client
	mongoClient    *mongo.Client
	window         window.Store
	docs           documents.Store
	karma          *platform.CircuitBreakerKarma
	processor      *moderation.Processor
	source         platform.Source
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceModeration)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := config.ValidateCredentials(a.Config); err != nil {
		return err
	}

	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceModeration)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initStores(); err != nil {
		return fmt.Errorf("failed to initialize stores: %w", err)
	}

	if err := a.initBroker(); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.initEngine(); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	metrics.RegisterModerationMetrics()
	metrics.RegisterPlatformMetrics()
	if a.Config.Broker.Type == constants.SourceKafka {
		metrics.RegisterBrokerMetrics()
	}
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	a.initHTTPServer()
	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.rdb = rdb

	mc, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return err
	}
	a.mongoClient = mc
	return nil
}

func (a *App) initStores() error {
	if a.db == nil {
		return fmt.Errorf("audit log requires a PostgreSQL connection")
	}

	store, err := window.New(a.Config, a.db, a.rdb)
	if err != nil {
		return err
	}
	a.window = store

	docs, err := documents.New(a.Config.Documents, a.dbConnector.MongoDatabase(a.mongoClient))
	if err != nil {
		return err
	}
	a.docs = docs
	return nil
}

func (a *App) initBroker() error {
	if a.Config.Broker.Type != constants.SourceKafka {
		return nil
	}

	if a.Config.Moderation.Source == constants.SourceKafka {
		if err := a.InitConsumer(constants.ServiceModeration); err != nil {
			return err
		}
	}
	if a.Config.Broker.Kafka.DecisionsTopic != "" {
		if err := a.InitProducer(constants.ServiceModeration); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) initEngine() error {
	cfg := a.Config.Moderation

	client := reddit.NewClient(a.Config.Platform, cfg.Community, a.Logger)
	a.karma = platform.NewCircuitBreakerKarma(client, a.Config.CircuitBreaker)

	policy := moderation.NewDocumentPolicy(
		rules.NewLoader(a.docs, cfg.RulesDocument),
		tiers.NewLoader(a.docs, cfg.TiersDocument),
		a.Logger,
	)

	opts := []moderation.Option{moderation.WithDryRun(cfg.DryRun)}
	if a.Producer != nil {
		opts = append(opts, moderation.WithPublisher(
			broker.NewDecisionPublisher(a.Producer, a.Config.Broker.Kafka.DecisionsTopic, cfg.Source),
		))
	}

	engine := moderation.NewEngine(moderation.Deps{
		Policy:     policy,
		Window:     a.window,
		Karma:      a.karma,
		Moderators: client,
		Actions:    client,
		Audit:      audit.NewRepository(a.db),
	}, a.Logger, opts...)
	a.processor = moderation.NewProcessor(engine, a.Logger)

	switch cfg.Source {
	case constants.SourceKafka:
		a.source = broker.NewSubmissionSource(a.Consumer, a.Config.Broker.Kafka.InputTopic)
	default:
		stream, err := reddit.NewStream(client, reddit.StreamOptions{
			PollInterval:  cfg.PollInterval,
			SkipExisting:  cfg.SkipExisting,
			SeenCacheSize: cfg.SeenCacheSize,
		}, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to create submission stream: %w", err)
		}
		a.source = stream
	}
	return nil
}

func (a *App) initHTTPServer() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(a.Logger))

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	if a.rdb != nil {
		healthRegistry.Register(health.NewRedisChecker(a.rdb))
	}
	if a.mongoClient != nil {
		healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))
	}
	if cb, ok := a.window.(*window.CircuitBreakerRepository); ok {
		healthRegistry.Register(health.NewCircuitBreakerChecker("window", cb))
	}
	healthRegistry.Register(health.NewCircuitBreakerChecker("karma", a.karma))

	router.GET("/health", healthRegistry.Handler())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds,
	}
}

// Run serves health and metrics and processes submissions until ctx is
// cancelled, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := a.processor.Run(gCtx, a.source)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("processor error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(context.WithoutCancel(ctx))
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.Base.Shutdown(ctx, func(ctx context.Context) []error {
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
		return append(errs, a.dbConnector.ShutdownDatabases(shutdownCtx, a.rdb, a.db, a.mongoClient)...)
	})
}
