package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/hayak-access/internal/dto"
	"github.com/prohmpiriya/hayak-access/internal/service"
	"github.com/prohmpiriya/hayak-access/pkg/middleware"
	"github.com/prohmpiriya/hayak-access/pkg/response"
	"github.com/prohmpiriya/hayak-access/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AllocationHandler handles reservations and coupon checks
type AllocationHandler struct {
	allocation service.AllocationService
}

// NewAllocationHandler creates a new allocation handler
func NewAllocationHandler(allocation service.AllocationService) *AllocationHandler {
	return &AllocationHandler{allocation: allocation}
}

// Reserve handles POST /reservations
func (h *AllocationHandler) Reserve(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.allocation.reserve")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req dto.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		bindError(c, err)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = middleware.GetIdempotencyKey(c)
	}
	// the middleware is absent when no Redis is configured
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader(middleware.IdempotencyKeyHeader)
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("event_id", req.EventID),
		attribute.String("ticket_id", req.TicketID),
		attribute.Int("zones", len(req.ZoneIDs)),
		attribute.Bool("coupon", req.CouponCode != ""),
	)

	inv, err := h.allocation.Reserve(ctx, userID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("invitation_id", inv.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, inv)
}

// ValidateCoupon handles POST /coupons/validate
func (h *AllocationHandler) ValidateCoupon(c *gin.Context) {
	var req dto.ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.allocation.ValidateCoupon(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}
