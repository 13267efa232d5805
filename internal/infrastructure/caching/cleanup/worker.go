// Package cleanup provides the background worker that expires idle gate records
package cleanup

import (
	"context"
	"time"

	"github.com/AtRiskMedia/drillgate/internal/domain/gate"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/performance"
)

// Worker periodically purges gate records idle for longer than the TTL
type Worker struct {
	purger  gate.Purger
	config  *Config
	logger  *logging.ChanneledLogger
	tracker *performance.Tracker
}

// NewWorker creates a new cleanup worker with injected configuration
func NewWorker(purger gate.Purger, config *Config, logger *logging.ChanneledLogger, tracker *performance.Tracker) *Worker {
	return &Worker{
		purger:  purger,
		config:  config,
		logger:  logger,
		tracker: tracker,
	}
}

// Start runs until ctx is cancelled. It returns immediately when expiry is
// disabled.
func (w *Worker) Start(ctx context.Context) {
	if !w.config.Enabled() {
		w.logger.Cache().Info("Gate state cleanup disabled", "ttl", w.config.StateTTL)
		return
	}

	ticker := time.NewTicker(w.config.CleanupInterval)
	defer ticker.Stop()

	w.logger.Cache().Info("Gate state cleanup worker started",
		"interval", w.config.CleanupInterval, "ttl", w.config.StateTTL)

	for {
		select {
		case <-ctx.Done():
			w.logger.Cache().Info("Gate state cleanup worker stopping")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single purge pass and returns the number of records removed
func (w *Worker) RunOnce(ctx context.Context) int {
	marker := w.tracker.StartOperation("cleanup:purge_idle", "cleanup")
	defer marker.Complete()

	purged, err := w.purger.PurgeIdle(ctx, w.config.StateTTL)
	if err != nil {
		marker.SetError(err)
		w.logger.LogError(logging.ChannelCache, "purge_idle", err, "")
		return 0
	}
	marker.AddMetadata("purged", purged)

	if purged > 0 {
		w.logger.Cache().Info("Purged idle gate records", "count", purged, "ttl", w.config.StateTTL)
	} else {
		w.logger.Cache().Debug("No idle gate records to purge")
	}
	return purged
}
