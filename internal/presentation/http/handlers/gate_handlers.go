// Package handlers provides HTTP request handlers for the presentation layer.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/drillgate/internal/application/services"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/drillgate/internal/presentation/http/middleware"
)

// GateOperations is the slice of the gate service the HTTP handlers use.
type GateOperations interface {
	Status(ctx context.Context, v services.Visitor, itemID string) (*services.GateStatus, error)
	RecordView(ctx context.Context, v services.Visitor, itemID string) (*services.GateStatus, error)
	SubmitEmail(ctx context.Context, v services.Visitor, email string) (*services.GateStatus, error)
	VerifyBroker(ctx context.Context, v services.Visitor, code string) (*services.GateStatus, error)
	Dismiss(ctx context.Context, v services.Visitor) (*services.GateStatus, error)
	Reset(ctx context.Context, v services.Visitor) (*services.GateStatus, error)
	IdentityKeyFor(v services.Visitor) string
}

// GateHandlers contains the gate API handlers
type GateHandlers struct {
	gateService GateOperations
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewGateHandlers creates gate handlers with injected dependencies
func NewGateHandlers(gateService GateOperations, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *GateHandlers {
	return &GateHandlers{
		gateService: gateService,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

type viewRequest struct {
	ItemID string `json:"itemId"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type brokerRequest struct {
	ConfirmationCode string `json:"confirmationCode"`
}

// GetStatus handles GET /api/v1/gate/status
func (h *GateHandlers) GetStatus(c *gin.Context) {
	v, ok := h.visitor(c)
	if !ok {
		return
	}
	marker := h.perfTracker.StartOperation("get_gate_status_request", "http")
	defer marker.Complete()

	status, err := h.gateService.Status(c.Request.Context(), v, c.Query("itemId"))
	h.respond(c, marker, "get_gate_status", status, err)
}

// PostView handles POST /api/v1/gate/views
func (h *GateHandlers) PostView(c *gin.Context) {
	v, ok := h.visitor(c)
	if !ok {
		return
	}
	marker := h.perfTracker.StartOperation("post_view_request", "http")
	defer marker.Complete()

	var req viewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		marker.SetError(err)
		respondBadRequest(c, err)
		return
	}

	status, err := h.gateService.RecordView(c.Request.Context(), v, req.ItemID)
	h.respond(c, marker, "record_view", status, err)
}

// PostEmail handles POST /api/v1/gate/email
func (h *GateHandlers) PostEmail(c *gin.Context) {
	v, ok := h.visitor(c)
	if !ok {
		return
	}
	marker := h.perfTracker.StartOperation("post_email_request", "http")
	defer marker.Complete()

	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		marker.SetError(err)
		respondBadRequest(c, err)
		return
	}

	status, err := h.gateService.SubmitEmail(c.Request.Context(), v, req.Email)
	h.respond(c, marker, "submit_email", status, err)
}

// PostBroker handles POST /api/v1/gate/broker. The body is optional when
// confirmation codes are disabled.
func (h *GateHandlers) PostBroker(c *gin.Context) {
	v, ok := h.visitor(c)
	if !ok {
		return
	}
	marker := h.perfTracker.StartOperation("post_broker_request", "http")
	defer marker.Complete()

	var req brokerRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			marker.SetError(err)
			respondBadRequest(c, err)
			return
		}
	}

	status, err := h.gateService.VerifyBroker(c.Request.Context(), v, req.ConfirmationCode)
	h.respond(c, marker, "verify_broker", status, err)
}

// PostDismiss handles POST /api/v1/gate/dismiss
func (h *GateHandlers) PostDismiss(c *gin.Context) {
	v, ok := h.visitor(c)
	if !ok {
		return
	}
	marker := h.perfTracker.StartOperation("post_dismiss_request", "http")
	defer marker.Complete()

	status, err := h.gateService.Dismiss(c.Request.Context(), v)
	h.respond(c, marker, "dismiss_gate", status, err)
}

// DeleteGate handles DELETE /api/v1/gate
func (h *GateHandlers) DeleteGate(c *gin.Context) {
	v, ok := h.visitor(c)
	if !ok {
		return
	}
	marker := h.perfTracker.StartOperation("delete_gate_request", "http")
	defer marker.Complete()

	status, err := h.gateService.Reset(c.Request.Context(), v)
	h.respond(c, marker, "reset", status, err)
}

func (h *GateHandlers) visitor(c *gin.Context) (services.Visitor, bool) {
	v, ok := middleware.GetVisitor(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "visitor context not found"})
	}
	return v, ok
}

func (h *GateHandlers) respond(c *gin.Context, marker *performance.Marker, operation string, status *services.GateStatus, err error) {
	if err != nil {
		marker.SetError(err)
		respondError(c, h.logger, operation, err)
		return
	}
	marker.SetSuccess(true)
	h.logger.System().Debug("Gate request completed", "operation", operation, "activeGate", status.ActiveGate)
	c.JSON(http.StatusOK, status)
}
