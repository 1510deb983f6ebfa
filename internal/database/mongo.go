package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"smedia/internal/config"
	"smedia/internal/middleware"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Mongo collection names.
const (
	PostsCollection = "posts"
	UsersCollection = "users"
)

// ConnectMongo opens a client for cfg.MongoURI, verifies it with a ping and returns
// the configured database handle.
func ConnectMongo(ctx context.Context, cfg *config.Config) (*mongo.Client, *mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(cfg.MongoURI).
		SetAppName("smedia").
		SetMaxPoolSize(uint64(max(cfg.DBMaxOpenConns, 1))).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(cfg.MongoDatabase)
	middleware.Logger.Info("MongoDB connected successfully", slog.String("database", cfg.MongoDatabase))
	return client, db, nil
}

// EnsureMongoIndexes creates the indexes the post and user queries rely on.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	postIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "views", Value: -1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "authorEmail", Value: 1}, {Key: "reports", Value: -1}}},
		{Keys: bson.D{{Key: "authorId", Value: 1}}},
	}
	if _, err := db.Collection(PostsCollection).Indexes().CreateMany(ctx, postIndexes); err != nil {
		return fmt.Errorf("create post indexes: %w", err)
	}

	userIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "username", Value: 1}}},
	}
	if _, err := db.Collection(UsersCollection).Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}
