// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops the background workers and tears down DB connections.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if rt.runner != nil {
		logger.Info("stopping background workers")
		rt.runner.Stop()
	}
	if rt.dispatcher != nil {
		logger.Info("stopping notification dispatcher")
		rt.dispatcher.Stop()
	}

	if deps.GangMailMongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.GangMailMongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
