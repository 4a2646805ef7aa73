// Package modelstore persists one forecasting artifact per segment.
// Artifacts are replaced whole on every retrain and never versioned.
package modelstore

import (
	"context"
	"fmt"

	"github.com/wonny/harvest/backend/internal/contracts"
	"github.com/wonny/harvest/backend/pkg/config"
	"github.com/wonny/harvest/backend/pkg/logger"
)

// ObjectName returns the artifact file name for a segment.
// The Overall aggregate uses the sentinel municipality id.
func ObjectName(key contracts.SegmentKey, overallID int64) string {
	return fmt.Sprintf("model_%d_%d.json", key.CommodityID, contracts.MunicipalityID(key.Municipality, overallID))
}

// New builds the configured backend, wrapped in an LRU cache when enabled
// ⭐ SSOT: model store wiring happens only here
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (contracts.ModelStore, error) {
	overallID := cfg.Forecast.OverallMunicipalityID

	var (
		store contracts.ModelStore
		err   error
	)
	switch cfg.Storage.Backend {
	case "s3":
		store, err = NewS3Store(ctx, cfg.Storage, overallID)
	default:
		store, err = NewFileStore(cfg.Storage.Dir, overallID)
	}
	if err != nil {
		return nil, err
	}

	log.WithFields(map[string]interface{}{
		"backend":    cfg.Storage.Backend,
		"dir":        cfg.Storage.Dir,
		"cache_size": cfg.ModelCache.Size,
	}).Info("Model store ready")

	if cfg.ModelCache.Size <= 0 {
		return store, nil
	}
	return NewCachedStore(store, cfg.ModelCache.Size, cfg.ModelCache.TTL), nil
}
