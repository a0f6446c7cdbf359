package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/provisioning/internal/service/catalog"
)

// CatalogHandler exposes catalog cache operations.
type CatalogHandler struct {
	catalog *catalog.Service
	logger  *zap.Logger
}

// NewCatalogHandler constructs the catalog handler.
func NewCatalogHandler(products *catalog.Service, logger *zap.Logger) *CatalogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogHandler{catalog: products, logger: logger}
}

// FlushCache drops every cached catalog answer so the next lookups hit the catalog service.
// POST /catalog/cache/flush
func (h *CatalogHandler) FlushCache(c *gin.Context) {
	if err := h.catalog.Flush(c.Request.Context()); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
