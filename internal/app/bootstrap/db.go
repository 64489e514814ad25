// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/afgang/gangmail/internal/app/store/assignments"
	"github.com/afgang/gangmail/internal/app/store/exchanges"
	"github.com/afgang/gangmail/internal/app/store/notifications"
	"github.com/afgang/gangmail/internal/app/store/participants"
	"github.com/afgang/gangmail/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectDB establishes the MongoDB connection used by every store.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	opts := options.Client().
		ApplyURI(appCfg.MongoURI).
		SetMaxPoolSize(appCfg.MongoMaxPoolSize).
		SetMinPoolSize(appCfg.MongoMinPoolSize)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return DBDeps{}, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeouts.Ping())
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return DBDeps{}, fmt.Errorf("mongo ping: %w", err)
	}

	logger.Info("connected to MongoDB", zap.String("database", appCfg.MongoDatabase))

	return DBDeps{
		GangMailMongoClient:   client,
		GangMailMongoDatabase: client.Database(appCfg.MongoDatabase),
	}, nil
}

// EnsureSchema creates the indexes each collection relies on.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	db := deps.GangMailMongoDatabase

	for _, ensure := range []struct {
		name string
		fn   func(context.Context) error
	}{
		{"exchanges", exchanges.New(db).EnsureIndexes},
		{"participants", participants.New(db).EnsureIndexes},
		{"assignments", assignments.New(db).EnsureIndexes},
		{"notifications", notifications.New(db).EnsureIndexes},
	} {
		if err := ensure.fn(ctx); err != nil {
			logger.Error("index setup failed", zap.String("collection", ensure.name), zap.Error(err))
			return fmt.Errorf("ensure %s indexes: %w", ensure.name, err)
		}
	}

	logger.Info("MongoDB indexes ensured")
	return nil
}
