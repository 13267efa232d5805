// Package middleware provides HTTP middleware for the gate API.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/drillgate/internal/application/services"
)

// DeviceHeader carries the device id in both directions.
const DeviceHeader = "X-Drillgate-Device-ID"

const visitorKey = "drillgate.visitor"

// IdentityResolver settles a visitor's device id.
type IdentityResolver interface {
	ResolveIdentity(v services.Visitor) (deviceID, email string)
}

// DeviceMiddleware reads the device id and identity token from headers,
// falling back to the deviceId and token query parameters that browsers use
// for websocket requests. A missing or malformed device id is replaced and
// the settled id is echoed on the response.
func DeviceMiddleware(resolver IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		v := services.Visitor{
			DeviceID: strings.TrimSpace(c.GetHeader(DeviceHeader)),
			Token:    bearerToken(c.GetHeader("Authorization")),
		}
		if v.DeviceID == "" {
			v.DeviceID = strings.TrimSpace(c.Query("deviceId"))
		}
		if v.Token == "" {
			v.Token = strings.TrimSpace(c.Query("token"))
		}

		v.DeviceID, _ = resolver.ResolveIdentity(v)
		c.Header(DeviceHeader, v.DeviceID)
		c.Set(visitorKey, v)
		c.Next()
	}
}

// GetVisitor returns the visitor stored by DeviceMiddleware.
func GetVisitor(c *gin.Context) (services.Visitor, bool) {
	raw, exists := c.Get(visitorKey)
	if !exists {
		return services.Visitor{}, false
	}
	v, ok := raw.(services.Visitor)
	return v, ok
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
