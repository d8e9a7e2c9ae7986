package httpserver

import (
	"errors"
	"net/http"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/service/checkout"

	"github.com/gin-gonic/gin"
)

type placeOrderResponse struct {
	OK    bool          `json:"ok"`
	Order *domain.Order `json:"order"`
}

// checkoutStatus maps a checkout failure code to its HTTP status.
func checkoutStatus(code checkout.Code) int {
	switch code {
	case checkout.CodeAddressIncomplete, checkout.CodeMobileRequired:
		return http.StatusBadRequest
	case checkout.CodeUnauthorized:
		return http.StatusUnauthorized
	case checkout.CodeCartEmpty, checkout.CodeInsufficientStock:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) placeOrder(c *gin.Context) {
	var req checkout.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	order, err := h.deps.CheckoutSvc.PlaceOrder(c.Request.Context(), projectFrom(c).ID, sessionFrom(c), req)
	if err != nil {
		code := checkout.CodeOf(err)
		resp := errorResponse{Code: string(code), Fields: checkout.FieldsOf(err)}
		if code != checkout.CodeUnknown {
			resp.Message = err.Error()
		}
		c.JSON(checkoutStatus(code), resp)
		return
	}
	c.JSON(http.StatusCreated, placeOrderResponse{OK: true, Order: order})
}

func (h *handlers) getOrder(c *gin.Context) {
	sess := sessionFrom(c)
	if sess.Invalid || sess.CustomerID == "" {
		writeError(c, http.StatusUnauthorized, string(checkout.CodeUnauthorized), "sign in required")
		return
	}
	order, err := h.deps.CheckoutSvc.GetOrder(c.Request.Context(), projectFrom(c).ID, sess.CustomerID, c.Param("orderID"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "order not found")
			return
		}
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
