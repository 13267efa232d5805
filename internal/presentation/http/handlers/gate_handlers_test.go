package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/drillgate/internal/application/services"
	"github.com/AtRiskMedia/drillgate/internal/domain/gate"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/drillgate/internal/presentation/http/middleware"
)

type stubGate struct {
	err      error
	lastCode string
}

func (s *stubGate) result() (*services.GateStatus, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &services.GateStatus{ActiveGate: "none"}, nil
}

func (s *stubGate) Status(context.Context, services.Visitor, string) (*services.GateStatus, error) {
	return s.result()
}
func (s *stubGate) RecordView(context.Context, services.Visitor, string) (*services.GateStatus, error) {
	return s.result()
}
func (s *stubGate) SubmitEmail(context.Context, services.Visitor, string) (*services.GateStatus, error) {
	return s.result()
}
func (s *stubGate) VerifyBroker(_ context.Context, _ services.Visitor, code string) (*services.GateStatus, error) {
	s.lastCode = code
	return s.result()
}
func (s *stubGate) Dismiss(context.Context, services.Visitor) (*services.GateStatus, error) {
	return s.result()
}
func (s *stubGate) Reset(context.Context, services.Visitor) (*services.GateStatus, error) {
	return s.result()
}
func (s *stubGate) IdentityKeyFor(v services.Visitor) string { return gate.AnonymousKey(v.DeviceID) }

type fixedResolver struct{}

func (fixedResolver) ResolveIdentity(v services.Visitor) (string, string) {
	if v.DeviceID == "" {
		return "generated", ""
	}
	return v.DeviceID, ""
}

func newRouter(stub *stubGate) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewGateHandlers(stub, logging.NewDiscardLogger(), performance.NewTracker(nil))
	r := gin.New()
	r.Use(middleware.DeviceMiddleware(fixedResolver{}))
	r.GET("/status", h.GetStatus)
	r.POST("/broker", h.PostBroker)
	r.POST("/views", h.PostView)
	return r
}

func TestRespondError_StatusCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"validation", &gate.ValidationError{Field: "itemId", Reason: "item id is required"}, http.StatusUnprocessableEntity, "item id is required"},
		{"invalid state", &gate.InvalidStateError{Op: "dismiss gate", Reason: "no gate is active"}, http.StatusConflict, "no gate is active"},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			newRouter(&stubGate{err: tc.err}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
			assert.Equal(t, tc.code, w.Code)
			assert.Contains(t, w.Body.String(), tc.msg)
			assert.NotContains(t, w.Body.String(), "disk on fire")
		})
	}
}

func TestPostBroker_OptionalBody(t *testing.T) {
	stub := &stubGate{}
	r := newRouter(stub)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/broker", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, stub.lastCode)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/broker", strings.NewReader(`{"confirmationCode":"abc"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", stub.lastCode)
}

func TestDeviceMiddleware_Fallbacks(t *testing.T) {
	r := newRouter(&stubGate{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, "generated", w.Header().Get(middleware.DeviceHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status?deviceId=from-query", nil))
	assert.Equal(t, "from-query", w.Header().Get(middleware.DeviceHeader))

	req := httptest.NewRequest(http.MethodGet, "/status?deviceId=from-query", nil)
	req.Header.Set(middleware.DeviceHeader, "from-header")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "from-header", w.Header().Get(middleware.DeviceHeader))
}
