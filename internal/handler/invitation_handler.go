package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/hayak-access/internal/domain"
	"github.com/prohmpiriya/hayak-access/internal/dto"
	"github.com/prohmpiriya/hayak-access/internal/service"
	"github.com/prohmpiriya/hayak-access/pkg/middleware"
	"github.com/prohmpiriya/hayak-access/pkg/response"
	"github.com/prohmpiriya/hayak-access/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const maxBarcodeSize = 1024

// InvitationHandler handles invitation lifecycle requests
type InvitationHandler struct {
	invitations service.InvitationService
}

// NewInvitationHandler creates a new invitation handler
func NewInvitationHandler(invitations service.InvitationService) *InvitationHandler {
	return &InvitationHandler{invitations: invitations}
}

// Get handles GET /invitations/:id
func (h *InvitationHandler) Get(c *gin.Context) {
	inv, err := h.invitations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, inv)
}

// Status handles GET /invitations/:id/status
func (h *InvitationHandler) Status(c *gin.Context) {
	status, err := h.invitations.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, status)
}

// History handles GET /invitations/:id/history
func (h *InvitationHandler) History(c *gin.Context) {
	entries, err := h.invitations.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, entries)
}

// Barcode handles GET /invitations/:id/barcode.png
func (h *InvitationHandler) Barcode(c *gin.Context) {
	size := 256
	if v := c.Query("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxBarcodeSize {
			response.BadRequest(c, "size must be between 1 and 1024")
			return
		}
		size = n
	}

	png, err := h.invitations.BarcodePNG(c.Request.Context(), c.Param("id"), size)
	if err != nil {
		handleError(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, "image/png", png)
}

// Accept handles POST /invitations/:id/accept
func (h *InvitationHandler) Accept(c *gin.Context) {
	h.transition(c, domain.ActionAccept)
}

// Decline handles POST /invitations/:id/decline
func (h *InvitationHandler) Decline(c *gin.Context) {
	h.transition(c, domain.ActionDecline)
}

// CheckIn handles POST /invitations/:id/checkin
func (h *InvitationHandler) CheckIn(c *gin.Context) {
	h.transition(c, domain.ActionCheckIn)
}

// CheckOut handles POST /invitations/:id/checkout
func (h *InvitationHandler) CheckOut(c *gin.Context) {
	h.transition(c, domain.ActionCheckOut)
}

func (h *InvitationHandler) transition(c *gin.Context, action domain.Action) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.invitation."+string(action))
	defer span.End()

	actorID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	invitationID := c.Param("id")
	span.SetAttributes(attribute.String("invitation_id", invitationID), attribute.String("actor_id", actorID))

	// the body is optional; an explicit time only matters for check-in/out
	var req dto.TransitionRequest
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			bindError(c, err)
			return
		}
	}
	var at time.Time
	if req.At != nil {
		at = *req.At
	}

	var (
		inv *domain.Invitation
		err error
	)
	switch action {
	case domain.ActionAccept:
		inv, err = h.invitations.Accept(ctx, invitationID, actorID)
	case domain.ActionDecline:
		inv, err = h.invitations.Decline(ctx, invitationID, actorID)
	case domain.ActionCheckIn:
		inv, err = h.invitations.CheckIn(ctx, invitationID, actorID, at)
	case domain.ActionCheckOut:
		inv, err = h.invitations.CheckOut(ctx, invitationID, actorID, at)
	default:
		err = domain.ErrInvalidTransition
	}
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}
	response.Success(c, inv)
}

// Scan handles POST /checkin/scan
func (h *InvitationHandler) Scan(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.invitation.scan")
	defer span.End()

	actorID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req dto.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	var at time.Time
	if req.At != nil {
		at = *req.At
	}

	inv, err := h.invitations.CheckInByScan(ctx, req.Payload, actorID, at)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}
	response.Success(c, inv)
}
