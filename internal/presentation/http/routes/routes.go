// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/drillgate/internal/application/container"
	"github.com/AtRiskMedia/drillgate/internal/presentation/http/handlers"
	"github.com/AtRiskMedia/drillgate/internal/presentation/http/middleware"
	"github.com/AtRiskMedia/drillgate/pkg/config"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware(config.CORSAllowedOrigins))

	gateHandlers := handlers.NewGateHandlers(container.GateService, container.Logger, container.PerfTracker)
	streamHandlers := handlers.NewStreamHandlers(container.GateService, container.Hub, container.Logger, handlers.StreamOptions{
		PingInterval:   config.StreamPingInterval,
		SendBuffer:     config.StreamSendBuffer,
		AllowedOrigins: config.CORSAllowedOrigins,
	})
	healthHandlers := handlers.NewHealthHandlers(container.StoreDriver, container.Monitor, container.PerfTracker, container.Hub)

	api := r.Group("/api/v1")
	{
		api.GET("/health", healthHandlers.GetHealth)

		gateAPI := api.Group("/gate")
		gateAPI.Use(middleware.DeviceMiddleware(container.GateService))
		{
			gateAPI.GET("/status", gateHandlers.GetStatus)
			gateAPI.POST("/views", gateHandlers.PostView)
			gateAPI.POST("/email", gateHandlers.PostEmail)
			gateAPI.POST("/broker", gateHandlers.PostBroker)
			gateAPI.POST("/dismiss", gateHandlers.PostDismiss)
			gateAPI.DELETE("", gateHandlers.DeleteGate)
			gateAPI.GET("/stream", streamHandlers.GetStream)
		}
	}

	return r
}
