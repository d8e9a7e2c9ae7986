package httpserver

import (
	"net/http"
	"strings"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/service/address"

	"github.com/gin-gonic/gin"
)

func addressType(raw string) (domain.AddressType, bool) {
	t := domain.AddressType(strings.ToUpper(strings.TrimSpace(raw)))
	if t == "" {
		return domain.AddressShipping, true
	}
	return t, t.Valid()
}

func (h *handlers) listAddresses(c *gin.Context) {
	typ, ok := addressType(c.Query("type"))
	if !ok {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "unknown address type")
		return
	}
	includeArchived := c.Query("includeArchived") == "true"
	out, err := h.deps.AddressSvc.List(c.Request.Context(), sessionFrom(c).CustomerID, typ, includeArchived)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if out == nil {
		out = []domain.Address{}
	}
	c.JSON(http.StatusOK, gin.H{"results": out, "count": len(out)})
}

func (h *handlers) saveAddress(c *gin.Context) {
	var body address.Input
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	rawType, _ := body["type"].(string)
	typ, ok := addressType(rawType)
	if !ok {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "unknown address type")
		return
	}
	delete(body, "type")

	a, err := h.deps.AddressSvc.Save(c.Request.Context(), sessionFrom(c).CustomerID, typ, body)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *handlers) setDefaultAddress(c *gin.Context) {
	a, err := h.deps.AddressSvc.SetDefault(c.Request.Context(), sessionFrom(c).CustomerID, c.Param("addressID"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *handlers) archiveAddress(c *gin.Context) {
	a, err := h.deps.AddressSvc.Archive(c.Request.Context(), sessionFrom(c).CustomerID, c.Param("addressID"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *handlers) restoreAddress(c *gin.Context) {
	a, err := h.deps.AddressSvc.Restore(c.Request.Context(), sessionFrom(c).CustomerID, c.Param("addressID"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *handlers) deleteAddress(c *gin.Context) {
	archived, err := h.deps.AddressSvc.Delete(c.Request.Context(), sessionFrom(c).CustomerID, c.Param("addressID"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": !archived, "archived": archived})
}

func (h *handlers) addressVersions(c *gin.Context) {
	out, err := h.deps.AddressSvc.Versions(c.Request.Context(), sessionFrom(c).CustomerID, c.Param("addressID"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": out, "count": len(out)})
}
