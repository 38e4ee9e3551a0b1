package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"live-response-service/internal/app"
	"live-response-service/internal/config"
	"live-response-service/internal/feed"
	"live-response-service/internal/infra/memory"
	pgstore "live-response-service/internal/infra/postgres"
	redisstore "live-response-service/internal/infra/redis"
	"live-response-service/internal/infra/sqlite"
	"live-response-service/internal/logging"
	"live-response-service/internal/metrics"
)

// runtime holds the wired service and everything that must be released on exit.
type runtime struct {
	cfg       config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	service   *app.Service
	liveViews *redisstore.ViewRegistry
	closers   []func() error
}

func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func loadRuntime(ctx context.Context, path string) (*runtime, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	rt := &runtime{
		cfg:     cfg,
		logger:  logging.New(cfg.Log.Level, cfg.Log.Format),
		metrics: metrics.New(),
	}
	if err := rt.wire(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) wire(ctx context.Context) error {
	cfg := rt.cfg

	questions, responses, err := rt.openStorage(ctx)
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, redisClient.Close)
	}

	questionTTL := config.TTLDuration(cfg.Question.TTL, 10*time.Minute)
	var views app.ViewRegistry
	if redisClient != nil {
		questions = redisstore.NewQuestionCache(redisClient, questions, questionTTL)
		rt.liveViews = redisstore.NewViewRegistry(redisClient, config.TTLDuration(cfg.Redis.TTL, time.Minute))
		views = rt.liveViews
	} else {
		questions = memory.NewQuestionCache(questions, questionTTL)
		views = memory.NewViewRegistry()
	}

	changes, err := rt.openFeed()
	if err != nil {
		return err
	}
	rt.closers = append(rt.closers, changes.Close)

	rt.service = app.NewService(app.Dependencies{
		Questions: questions,
		Responses: responses,
		Publisher: changes,
		Changes:   changes,
		Views:     views,
		Metrics:   rt.metrics,
		Logger:    rt.logger,
	})
	return nil
}

func (rt *runtime) openStorage(ctx context.Context) (app.QuestionRepository, app.ResponseRepository, error) {
	cfg := rt.cfg
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		rt.logger.Warn("using in-memory storage; data is lost on restart")
		return memory.NewQuestionRepository(), memory.NewResponseRepository(), nil
	case config.StoragePostgres:
		if cfg.Postgres.URL == "" {
			return nil, nil, fmt.Errorf("postgres storage selected but no url configured")
		}
		if err := runMigrationsWithConfig(ctx, cfg, rt.logger); err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
		return pgstore.NewQuestionRepository(pool), pgstore.NewResponseRepository(pool), nil
	case config.StorageSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		rt.closers = append(rt.closers, db.Close)
		return db.Questions(), db.Responses(), nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func (rt *runtime) openFeed() (*feed.Feed, error) {
	cfg := rt.cfg
	switch cfg.Feed.Driver {
	case config.FeedMemory:
		return feed.NewInMemory(cfg.Feed.TopicPrefix, rt.logger), nil
	case config.FeedKafka:
		return feed.NewKafka(feed.KafkaConfig{
			Brokers:     cfg.Feed.Brokers,
			TopicPrefix: cfg.Feed.TopicPrefix,
		}, rt.logger)
	default:
		return nil, fmt.Errorf("unknown feed driver %q", cfg.Feed.Driver)
	}
}
