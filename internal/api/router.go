package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"relief-alert-service/internal/logging"
)

// NewRouter builds the engine. Only trustedProxies may set the client address
// through X-Forwarded-For; with none, ClientIP is the socket peer.
func NewRouter(h *Handler, hub *Hub, metrics http.Handler, trustedProxies []string, logger *logging.Logger) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies %v: %w", trustedProxies, err)
	}
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	r.GET("/health", h.Health)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}
	if hub != nil {
		r.GET("/ws/broadcasts", hub.Serve)
	}
	r.POST("/simulate/earthquake", h.SimulateEarthquake)

	user := r.Group("/user", RequireUser())
	{
		// Help calls
		user.POST("/help-calls", h.CreateHelpCall)
		user.GET("/help-calls", h.ListHelpCalls)
		user.PUT("/help-calls/:id", h.UpdateHelpCall)
		user.PUT("/help-calls/:id/status", h.UpdateHelpCallStatus)
		user.DELETE("/help-calls/:id", h.DeleteHelpCall)

		// Notifications
		user.GET("/notifications", h.GetPreferences)
		user.PUT("/notifications", h.SavePreferences)
		user.POST("/token", h.RegisterToken)
		user.POST("/send-demo", h.SendDemo)
	}
	return r, nil
}
