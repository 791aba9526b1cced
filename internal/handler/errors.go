package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/hayak-access/internal/domain"
	"github.com/prohmpiriya/hayak-access/pkg/logger"
	"github.com/prohmpiriya/hayak-access/pkg/response"
)

// errorStatus maps a domain error to its HTTP status
func errorStatus(err error) int {
	switch {
	case domain.IsNotFoundError(err):
		return http.StatusNotFound
	case domain.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case domain.IsConflictError(err):
		return http.StatusConflict
	case domain.IsCouponError(err),
		domain.IsLifecycleError(err),
		errors.Is(err, domain.ErrTicketNotOnSale),
		errors.Is(err, domain.ErrEventClosed),
		errors.Is(err, domain.ErrZoneNotGranted):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// handleError writes the error envelope for err
func handleError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Get().ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "error", err)
		response.InternalError(c)
		return
	}

	code := domain.ErrorCode(err)
	if domain.IsRetryable(err) || status == http.StatusGatewayTimeout {
		response.RetryableError(c, status, code, err.Error())
		return
	}
	response.Error(c, status, code, err.Error())
}

// bindError answers a request body that failed binding
func bindError(c *gin.Context, err error) {
	response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
}
