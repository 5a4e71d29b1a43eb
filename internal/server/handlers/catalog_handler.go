package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/mamadbah2/refill/internal/domain/models"
)

// CatalogStore is the read-only catalog surface the handler needs. Catalog
// writes are admin plumbing handled elsewhere.
type CatalogStore interface {
	ListItems(ctx context.Context) ([]models.Item, error)
	ListLocations(ctx context.Context, q string) ([]models.Location, error)
	ListBoxes(ctx context.Context, location primitive.ObjectID) ([]models.Box, error)
	GetBox(ctx context.Context, id primitive.ObjectID) (models.Box, error)
}

// CatalogHandler serves the read-only catalog the field client caches.
type CatalogHandler struct {
	store  CatalogStore
	logger *zap.Logger
}

// NewCatalogHandler constructs the catalog read adapter.
func NewCatalogHandler(store CatalogStore, logger *zap.Logger) *CatalogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogHandler{store: store, logger: logger}
}

// Items lists the item catalog.
func (h *CatalogHandler) Items(c *gin.Context) {
	items, err := h.store.ListItems(c.Request.Context())
	if err != nil {
		h.logger.Error("list items failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load items"})
		return
	}
	if items == nil {
		items = []models.Item{}
	}
	c.JSON(http.StatusOK, items)
}

// Locations lists locations, filtered by the optional q name search.
func (h *CatalogHandler) Locations(c *gin.Context) {
	locations, err := h.store.ListLocations(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.logger.Error("list locations failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load locations"})
		return
	}
	if locations == nil {
		locations = []models.Location{}
	}
	c.JSON(http.StatusOK, locations)
}

// Boxes lists the boxes at a location.
func (h *CatalogHandler) Boxes(c *gin.Context) {
	raw := c.Query("location")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "location is required"})
		return
	}
	location, ok := parseID(c, raw)
	if !ok {
		return
	}

	boxes, err := h.store.ListBoxes(c.Request.Context(), location)
	if err != nil {
		h.logger.Error("list boxes failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load boxes"})
		return
	}
	if boxes == nil {
		boxes = []models.Box{}
	}
	c.JSON(http.StatusOK, boxes)
}
