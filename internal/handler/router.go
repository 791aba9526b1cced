package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes
type Handlers struct {
	Health     *HealthHandler
	Catalog    *CatalogHandler
	Allocation *AllocationHandler
	Invitation *InvitationHandler
}

// RouteMiddleware is the middleware the routes need. Idempotency may be nil.
type RouteMiddleware struct {
	Auth        gin.HandlerFunc
	Idempotency gin.HandlerFunc
}

// RegisterRoutes mounts the probes at the root and the API under /api/v1
func RegisterRoutes(router *gin.Engine, h *Handlers, mw RouteMiddleware) {
	router.GET("/health", h.Health.Health)
	router.GET("/ready", h.Health.Ready)

	v1 := router.Group("/api/v1")
	v1.Use(mw.Auth)

	events := v1.Group("/events")
	{
		events.POST("", h.Catalog.CreateEvent)
		events.GET("/:id", h.Catalog.GetEvent)
		events.POST("/:id/zones", h.Catalog.CreateZone)
		events.GET("/:id/zones", h.Catalog.ListZones)
		events.POST("/:id/tickets", h.Catalog.CreateTicket)
		events.POST("/:id/coupons", h.Catalog.CreateCoupon)
	}

	v1.GET("/zones/:id/remaining", h.Catalog.ZoneRemaining)
	v1.GET("/tickets/:id", h.Catalog.GetTicket)
	v1.POST("/coupons/validate", h.Allocation.ValidateCoupon)

	reserve := []gin.HandlerFunc{h.Allocation.Reserve}
	if mw.Idempotency != nil {
		reserve = append([]gin.HandlerFunc{mw.Idempotency}, reserve...)
	}
	v1.POST("/reservations", reserve...)

	invitations := v1.Group("/invitations")
	{
		invitations.GET("/:id", h.Invitation.Get)
		invitations.GET("/:id/status", h.Invitation.Status)
		invitations.GET("/:id/history", h.Invitation.History)
		invitations.GET("/:id/barcode.png", h.Invitation.Barcode)
		invitations.POST("/:id/accept", h.Invitation.Accept)
		invitations.POST("/:id/decline", h.Invitation.Decline)
		invitations.POST("/:id/checkin", h.Invitation.CheckIn)
		invitations.POST("/:id/checkout", h.Invitation.CheckOut)
	}

	v1.POST("/checkin/scan", h.Invitation.Scan)
}
