package httpserver

import (
	"net/http"

	cartsvc "storefront-checkout/internal/service/cart"

	"github.com/gin-gonic/gin"
)

type createCartRequest struct {
	Currency string `json:"currency" binding:"required,len=3"`
}

type lineItemRequest struct {
	SKU       string `json:"sku"`
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
}

type changeQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func (h *handlers) createCart(c *gin.Context) {
	var req createCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	cart, err := h.deps.CartSvc.Create(c.Request.Context(), projectFrom(c).ID, ownerFrom(c), req.Currency)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cart)
}

func (h *handlers) activeCart(c *gin.Context) {
	cart, err := h.deps.CartSvc.Active(c.Request.Context(), projectFrom(c).ID, ownerFrom(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *handlers) getCart(c *gin.Context) {
	cart, err := h.deps.CartSvc.Get(c.Request.Context(), projectFrom(c).ID, ownerFrom(c), c.Param("cartID"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *handlers) updateCart(c *gin.Context) {
	var in cartsvc.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if len(in.Actions) == 0 {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "actions required")
		return
	}
	h.applyCartActions(c, in)
}

func (h *handlers) addLineItem(c *gin.Context) {
	var req lineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if req.SKU == "" && req.VariantID == "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "sku or variantId required")
		return
	}
	h.applyCartActions(c, cartsvc.UpdateInput{Actions: []cartsvc.UpdateAction{{
		Action:    "addLineItem",
		SKU:       req.SKU,
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
	}}})
}

func (h *handlers) changeLineItem(c *gin.Context) {
	var req changeQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	h.applyCartActions(c, cartsvc.UpdateInput{Actions: []cartsvc.UpdateAction{{
		Action:     "changeLineItemQuantity",
		LineItemID: c.Param("lineID"),
		Quantity:   *req.Quantity,
	}}})
}

func (h *handlers) applyCartActions(c *gin.Context, in cartsvc.UpdateInput) {
	cart, err := h.deps.CartSvc.Update(c.Request.Context(), projectFrom(c).ID, ownerFrom(c), c.Param("cartID"), in)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}
