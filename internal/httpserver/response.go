package httpserver

import (
	"errors"
	"net/http"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/service/address"
	cartsvc "storefront-checkout/internal/service/cart"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorResponse struct {
	OK      bool     `json:"ok"`
	Code    string   `json:"code"`
	Message string   `json:"message,omitempty"`
	Fields  []string `json:"fields,omitempty"`
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{Code: code, Message: message})
}

func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Code: code, Message: message})
}

// writeServiceError maps the shared sentinel errors onto HTTP responses.
func (h *handlers) writeServiceError(c *gin.Context, err error) {
	var (
		incomplete *address.IncompleteError
		invalid    *cartsvc.ValidationError
	)
	switch {
	case errors.As(err, &invalid):
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", invalid.Msg)
	case errors.As(err, &incomplete):
		c.JSON(http.StatusBadRequest, errorResponse{Code: "ADDRESS_INCOMPLETE", Fields: incomplete.Fields})
	case errors.Is(err, address.ErrMobileRequired):
		writeError(c, http.StatusBadRequest, "MOBILE_REQUIRED", err.Error())
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, cartsvc.ErrVariantNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrCartNotActive), errors.Is(err, address.ErrArchived), errors.Is(err, domain.ErrAlreadyExists):
		writeError(c, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, cartsvc.ErrNoPrice):
		writeError(c, http.StatusUnprocessableEntity, "INVALID_REQUEST", err.Error())
	default:
		h.logger.Error("unhandled service error", zapError(c, err)...)
		writeError(c, http.StatusInternalServerError, "UNKNOWN", "internal error")
	}
}

func zapError(c *gin.Context, err error) []zap.Field {
	return []zap.Field{
		zap.Error(err),
		zap.String("route", c.FullPath()),
		zap.String("project_id", projectFrom(c).ID),
	}
}
