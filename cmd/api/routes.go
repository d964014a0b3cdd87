package main

import (
	"database/sql"
	"net/http"

	"telehealth-platform/internal/auth"
	"telehealth-platform/internal/httpapi"
	"telehealth-platform/internal/rbac"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func registerPublicRoutes(r *gin.Engine, db *sql.DB, rdb *redis.Client) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if err := healthCheck(c.Request.Context(), db, rdb); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	r.POST("/v1/auth/login", h.Login)

	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", func(c *gin.Context) {
			id, err := auth.IdentityFrom(c.Request.Context())
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"user_id": id.UserID, "clinic_id": id.ClinicID, "role": id.Role, "name": id.Name})
		})

		// CALLS routes. Only the two call parties; admins read history through /admin.
		calls := v1.Group("/calls")
		calls.Use(httpapi.RequireClinicAndAnyRole(rbac.CallParticipantRoles...)...)
		{
			calls.GET("/state", h.CallState)
			calls.GET("/events", h.CallEvents)

			calls.POST("/watch", h.Watch)
			calls.POST("/unwatch", h.Unwatch)
			calls.POST("/incoming", h.Incoming)

			calls.POST("", h.StartCall)
			calls.POST("/accept", h.AcceptCall)
			calls.POST("/reject", h.RejectCall)
			calls.POST("/end", h.EndCall)

			calls.POST("/toggle-audio", h.ToggleAudio)
			calls.POST("/toggle-video", h.ToggleVideo)
		}

		// ADMIN routes
		// Hidden support role is intentionally NOT included unless explicitly desired.
		admin := v1.Group("/admin")
		admin.Use(httpapi.RequireClinicAndAnyRole(rbac.RoleClinicAdmin, rbac.RoleSuperAdmin)...)
		{
			admin.GET("/ping", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"status": "ok"})
			})
			admin.GET("/calls/summary", h.AdminCallsSummary)
		}
	}
}
