// Package bootstrap wires the post store, user directory and Redis from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"smedia/internal/cache"
	"smedia/internal/config"
	"smedia/internal/database"
	"smedia/internal/middleware"
	"smedia/internal/repository"
	"smedia/internal/seed"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// ApplySchema migrates the relational schema on connect.
	ApplySchema bool
	// SeedDemo fills an empty store with generated users and posts.
	SeedDemo bool
}

// Runtime holds the connected backends. Exactly one of DB and Mongo is set.
type Runtime struct {
	Driver string
	DB     *gorm.DB
	Mongo  *mongo.Client
	Redis  *redis.Client

	Posts repository.PostRepository
	Users repository.UserRepository
}

// InitRuntime connects to the configured store and Redis. Redis is optional:
// when it is unreachable the cache and cross-instance fan-out are disabled.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	rt := &Runtime{Driver: cfg.StoreDriver}

	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		client, db, err := database.ConnectMongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := database.EnsureMongoIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		rt.Mongo = client
		rt.Posts = repository.NewMongoPostRepository(db)
		rt.Users = repository.NewMongoUserRepository(db)

	case config.StoreDriverPostgres, config.StoreDriverSQLite:
		db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: opts.ApplySchema})
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		rt.DB = db
		rt.Posts = repository.NewPostRepository(db)
		rt.Users = repository.NewUserRepository(db)

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}

	cache.InitRedis(cfg.RedisURL)
	rt.Redis = cache.GetClient()
	if rt.Redis != nil {
		rt.Posts = repository.NewCachedPostRepository(rt.Posts)
	} else {
		middleware.Logger.Warn("Redis unavailable, running without cache and cross-instance events")
	}

	if opts.SeedDemo {
		if err := seedIfEmpty(ctx, rt); err != nil {
			_ = rt.Close(context.Background())
			return nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	return rt, nil
}

// Ping checks the store and, when configured, Redis.
func (rt *Runtime) Ping(ctx context.Context) (storeErr, redisErr error) {
	switch {
	case rt.DB != nil:
		storeErr = database.Ping(ctx, rt.DB)
	case rt.Mongo != nil:
		storeErr = rt.Mongo.Ping(ctx, nil)
	default:
		storeErr = errors.New("no store configured")
	}
	if rt.Redis != nil {
		redisErr = rt.Redis.Ping(ctx).Err()
	}
	return storeErr, redisErr
}

// Close releases every backend connection.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.DB != nil {
		if sqlDB, err := rt.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	if rt.Mongo != nil {
		errs = append(errs, rt.Mongo.Disconnect(ctx))
	}
	if rt.Redis != nil {
		errs = append(errs, rt.Redis.Close())
	}
	return errors.Join(errs...)
}

func seedIfEmpty(ctx context.Context, rt *Runtime) error {
	_, total, err := rt.Posts.List(ctx, 1, 0)
	if err != nil {
		return err
	}
	if total > 0 {
		middleware.Logger.Info("Store already has posts, skipping demo seed", slog.Int64("posts", total))
		return nil
	}
	result, err := seed.Seed(ctx, rt.Users, rt.Posts, seed.DefaultOptions())
	if err != nil {
		return err
	}
	middleware.Logger.Info("Demo data seeded",
		slog.Int("users", len(result.Users)),
		slog.Int("posts", len(result.Posts)))
	return nil
}
