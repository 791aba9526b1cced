package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/hayak-access/internal/dto"
	"github.com/prohmpiriya/hayak-access/internal/service"
	"github.com/prohmpiriya/hayak-access/pkg/middleware"
	"github.com/prohmpiriya/hayak-access/pkg/response"
	"github.com/prohmpiriya/hayak-access/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// CatalogHandler handles events, zones, tickets and coupons
type CatalogHandler struct {
	catalog service.CatalogService
	ledger  service.LedgerService
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog service.CatalogService, ledger service.LedgerService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, ledger: ledger}
}

// CreateEvent handles POST /events
func (h *CatalogHandler) CreateEvent(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.catalog.create_event")
	defer span.End()

	organizerID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req dto.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	event, err := h.catalog.CreateEvent(ctx, organizerID, &req)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}
	response.Created(c, event)
}

// GetEvent handles GET /events/:id
func (h *CatalogHandler) GetEvent(c *gin.Context) {
	event, err := h.catalog.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, event)
}

// CreateZone handles POST /events/:id/zones
func (h *CatalogHandler) CreateZone(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.catalog.create_zone")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", c.Param("id")))

	var req dto.CreateZoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	zone, err := h.catalog.CreateZone(ctx, c.Param("id"), &req)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}
	response.Created(c, zone)
}

// ListZones handles GET /events/:id/zones
func (h *CatalogHandler) ListZones(c *gin.Context) {
	zones, err := h.catalog.ListZones(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, zones)
}

// CreateTicket handles POST /events/:id/tickets
func (h *CatalogHandler) CreateTicket(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.catalog.create_ticket")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", c.Param("id")))

	var req dto.CreateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ticket, err := h.catalog.CreateTicket(ctx, c.Param("id"), &req)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}
	response.Created(c, ticket)
}

// GetTicket handles GET /tickets/:id
func (h *CatalogHandler) GetTicket(c *gin.Context) {
	ticket, err := h.catalog.GetTicket(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, ticket)
}

// CreateCoupon handles POST /events/:id/coupons
func (h *CatalogHandler) CreateCoupon(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.catalog.create_coupon")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", c.Param("id")))

	var req dto.CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	coupon, err := h.catalog.CreateCoupon(ctx, c.Param("id"), &req)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}
	response.Created(c, coupon)
}

// ZoneRemaining handles GET /zones/:id/remaining
func (h *CatalogHandler) ZoneRemaining(c *gin.Context) {
	zoneID := c.Param("id")
	remaining, err := h.ledger.Remaining(c.Request.Context(), zoneID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.ZoneRemainingResponse{ZoneID: zoneID, Remaining: remaining})
}
