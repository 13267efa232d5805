package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/drillgate/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/monitoring"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/performance"
)

const healthWindow = 5 * time.Minute

// StoreStats exposes store traffic and the stage census.
type StoreStats interface {
	Metrics() monitoring.StoreMetrics
	StageCounts(ctx context.Context) (map[string]int, error)
}

// HealthHandlers reports liveness
type HealthHandlers struct {
	storeDriver string
	store       StoreStats
	perfTracker *performance.Tracker
	hub         *messaging.GateHub
}

// NewHealthHandlers creates health handlers
func NewHealthHandlers(storeDriver string, store StoreStats, perfTracker *performance.Tracker, hub *messaging.GateHub) *HealthHandlers {
	return &HealthHandlers{storeDriver: storeDriver, store: store, perfTracker: perfTracker, hub: hub}
}

// GetHealth handles GET /api/v1/health
func (h *HealthHandlers) GetHealth(c *gin.Context) {
	body := gin.H{
		"status":        "ok",
		"store":         h.storeDriver,
		"storeMetrics":  h.store.Metrics(),
		"performance":   h.perfTracker.Health(healthWindow),
		"streamClients": h.hub.ClientCount(""),
		"time":          time.Now().UTC().Format(time.RFC3339),
	}

	counts, err := h.store.StageCounts(c.Request.Context())
	switch {
	case err == nil:
		body["stages"] = counts
	case !errors.Is(err, monitoring.ErrCensusUnsupported):
		body["stagesError"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}
