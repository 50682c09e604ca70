package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tierguard/internal/config"
	"tierguard/internal/logger"
	"tierguard/pkg/migrations"
)

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

// InitRedis returns nil when no host is configured.
func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	cfg := dc.Config.Database.Redis
	if cfg.Host == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	dc.Logger.Infow("Redis connected successfully", "key_prefix", cfg.KeyPrefix)
	return rdb, nil
}

// InitPostgreSQL returns nil when no host is configured. Pending migrations
// are applied when database.run_migrations is set.
func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context) (*sql.DB, error) {
	cfg := dc.Config.Database.Postgres
	if cfg.Host == "" {
		return nil, nil
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if dc.Config.Database.RunMigrations {
		if err := migrations.RunPostgres(db); err != nil {
			db.Close()
			return nil, err
		}
		dc.Logger.Info("PostgreSQL migrations applied")
	}

	dc.Logger.Info("PostgreSQL connected successfully")
	return db, nil
}

// InitMongoDB returns nil when no URI is configured.
func (dc *DatabaseConnector) InitMongoDB(ctx context.Context) (*mongo.Client, error) {
	cfg := dc.Config.Database.MongoDB
	if cfg.URI == "" {
		return nil, nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	if dc.Config.Database.RunMigrations {
		collection := dc.Config.Documents.MongoCollection
		if err := migrations.EnsureMongoCollection(ctx, client.Database(cfg.Database), collection); err != nil {
			client.Disconnect(ctx)
			return nil, err
		}
	}

	dc.Logger.Info("MongoDB connected successfully")
	return client, nil
}

// MongoDatabase returns the configured database, or nil without a client.
func (dc *DatabaseConnector) MongoDatabase(client *mongo.Client) *mongo.Database {
	if client == nil {
		return nil
	}
	return client.Database(dc.Config.Database.MongoDB.Database)
}

func (dc *DatabaseConnector) ShutdownDatabases(ctx context.Context, rdb *redis.Client, db *sql.DB, mc *mongo.Client) []error {
	var errs []error

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if db != nil {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close error: %w", err))
		}
	}

	if mc != nil {
		if err := mc.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect error: %w", err))
		}
	}

	return errs
}
