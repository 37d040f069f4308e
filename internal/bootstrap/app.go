// Package bootstrap wires the process: configuration, the storage backend
// chosen once at startup, optional redis and rabbitmq, and the shared clients
// everything downstream receives by injection.
package bootstrap

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/jeankeim/voice-brainstorm/internal/ai"
	"github.com/jeankeim/voice-brainstorm/internal/config"
	"github.com/jeankeim/voice-brainstorm/internal/logging"
	"github.com/jeankeim/voice-brainstorm/internal/model"
	postgresClient "github.com/jeankeim/voice-brainstorm/internal/platform/postgres"
	rabbitmqClient "github.com/jeankeim/voice-brainstorm/internal/platform/rabbitmq"
	redisClient "github.com/jeankeim/voice-brainstorm/internal/platform/redis"
	sqliteClient "github.com/jeankeim/voice-brainstorm/internal/platform/sqlite"
	"github.com/jeankeim/voice-brainstorm/internal/quota"
	"github.com/jeankeim/voice-brainstorm/internal/repository"
	"github.com/jeankeim/voice-brainstorm/internal/storage"
	"github.com/jeankeim/voice-brainstorm/internal/vectorstore"
	"github.com/jeankeim/voice-brainstorm/internal/worker"
)

type App struct {
	Config *config.Config
	Logger zerolog.Logger

	DB *gorm.DB
	// SQLiteMu serializes read-then-write sequences on the embedded backend.
	// It is nil when running on postgres.
	SQLiteMu *sync.Mutex

	VectorStore vectorstore.Store
	Quota       quota.Tracker

	Redis         *redisv9.Client
	MQConn        *amqp.Connection
	Publisher     *rabbitmqClient.MessagePublisher
	MessageWorker *worker.MessagePersistWorker

	AIClient *ai.Client
	Objects  storage.ObjectStorage
	Location *time.Location

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logger := logging.New(cfg.App.Env)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:    cfg,
		Logger:    logger,
		AIClient:  ai.NewClient(),
		Location:  loc,
		StartedAt: time.Now(),
	}

	if err := app.initStorage(ctx); err != nil {
		return nil, err
	}

	objects, err := storage.NewLocal(cfg.Objects.LocalDir, cfg.Objects.PublicURL)
	if err != nil {
		return nil, err
	}
	app.Objects = objects

	if cfg.Redis.Enabled {
		redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		app.Redis = redisCli
	}

	if cfg.RabbitMQ.Enabled {
		mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return nil, err
		}
		app.MQConn = mqConn
		app.Publisher = rabbitmqClient.NewMessagePublisher(mqConn, cfg.RabbitMQ.MessagePersistQueue)

		messageRepo := repository.NewMessageRepository(app.DB)
		app.MessageWorker = worker.NewMessagePersistWorker(mqConn, messageRepo, cfg.RabbitMQ.MessagePersistQueue, logger)
		if err := app.MessageWorker.Start(ctx); err != nil {
			return nil, fmt.Errorf("start message worker failed: %w", err)
		}
	}

	logger.Info().
		Str("backend", cfg.Storage.Backend).
		Bool("redis", cfg.Redis.Enabled).
		Bool("rabbitmq", cfg.RabbitMQ.Enabled).
		Msg("bootstrap complete")
	return app, nil
}

// initStorage picks the backend exactly once. Everything downstream receives
// the matching implementations and never branches on the backend again.
func (a *App) initStorage(ctx context.Context) error {
	cfg := a.Config

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		db, err := postgresClient.New(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return err
		}
		a.DB = db

		store, err := vectorstore.NewPostgresStore(db, cfg.Storage.TextSearchConfig)
		if err != nil {
			return err
		}
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		a.VectorStore = store

		tracker := quota.NewPostgresTracker(db, cfg.Quota.DailyLimit, a.Location)
		if err := tracker.Migrate(ctx); err != nil {
			return err
		}
		a.Quota = tracker

	case config.BackendSQLite:
		db, err := sqliteClient.New(cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		a.DB = db
		a.SQLiteMu = &sync.Mutex{}
		a.VectorStore = vectorstore.NewCollectionStore(db, a.SQLiteMu)
		a.Quota = quota.NewSQLiteTracker(db, a.SQLiteMu, cfg.Quota.DailyLimit, a.Location)

	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	err := a.DB.AutoMigrate(
		&model.User{},
		&model.Session{},
		&model.Message{},
		&model.KnowledgeBase{},
		&model.Document{},
		&model.VisitorUsage{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MessageWorker != nil {
		a.MessageWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
