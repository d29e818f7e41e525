package main

import (
	"net/http"

	"telehealth-signaling/internal/httpapi"
	"telehealth-signaling/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		anyCaller := rbac.RequireAnyRole(rbac.RolePatient, rbac.RoleDoctor, rbac.RoleAdmin)

		// Signal event bus.
		v1.POST("/events/emit", anyCaller, h.EmitEvent)
		v1.GET("/events/poll", anyCaller, h.PollEvents)
		v1.POST("/events/ack", anyCaller, h.AckEvents)

		// Call lifecycle.
		v1.POST("/calls/initiate", anyCaller, h.InitiateCall)
		v1.POST("/calls/:call_id/accept", anyCaller, h.AcceptCall)
		v1.POST("/calls/:call_id/reject", anyCaller, h.RejectCall)
		v1.POST("/calls/:call_id/end", anyCaller, h.EndCall)
		v1.POST("/calls/:call_id/connected", anyCaller, h.MarkConnected)

		// Media channel access.
		v1.POST("/agora/token", anyCaller, h.RequestToken)

		// Pending incoming-call notifications. The alternate delivery path
		// for clients that miss events on their stream.
		v1.GET("/agora/notify-incoming-call", anyCaller, h.PendingCalls)
		v1.DELETE("/agora/notify-incoming-call", anyCaller, h.AckPendingCall)
	}
}
