// Package logging constructs the process-wide structured logger. It is
// built once at process start and threaded through every component as a
// dependency value, never referenced as a package-level global.
package logging

import (
	"go.uber.org/zap"

	"archivehub/internal/config"
)

// New builds a zap logger appropriate for cfg.Env. Development mode gets
// human-readable console output; anything else gets JSON production
// output suitable for log aggregation.
func New(cfg config.Config) (*zap.Logger, error) {
	if cfg.Env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// WithFields is a small helper that returns a logger carrying worker,
// priority, and the job's identifying tuple. The resilience envelope does
// not call it; it attaches its own fields.
func WithFields(logger *zap.Logger, worker, priority, tenantID, assetID, batchID string) *zap.Logger {
	fields := []zap.Field{
		zap.String("worker", worker),
		zap.String("priority", priority),
		zap.String("tenant_id", tenantID),
		zap.String("asset_id", assetID),
	}
	if batchID != "" {
		fields = append(fields, zap.String("batch_id", batchID))
	}
	return logger.With(fields...)
}
