package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/mamadbah2/refill/internal/domain/models"
	"github.com/mamadbah2/refill/internal/service/deliveries"
)

// DeliveryHandler exposes delivery recording and listing over HTTP.
type DeliveryHandler struct {
	svc    *deliveries.Service
	logger *zap.Logger
}

// NewDeliveryHandler constructs the HTTP adapter for deliveries.
func NewDeliveryHandler(svc *deliveries.Service, logger *zap.Logger) *DeliveryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeliveryHandler{svc: svc, logger: logger}
}

type lineRequest struct {
	Item      string  `json:"item" binding:"required"`
	Quantity  float64 `json:"quantity" binding:"required"`
	Packaging string  `json:"packaging"`
}

type createDeliveryRequest struct {
	Location    string        `json:"location" binding:"required"`
	Box         string        `json:"box" binding:"required"`
	Visit       string        `json:"visit"`
	RepName     string        `json:"repName"`
	DeliveredAt *time.Time    `json:"deliveredAt"`
	Lines       []lineRequest `json:"lines" binding:"required"`
}

func parseLines(c *gin.Context, raw []lineRequest) ([]deliveries.LineInput, bool) {
	inputs := make([]deliveries.LineInput, 0, len(raw))
	for _, l := range raw {
		item, ok := parseID(c, l.Item)
		if !ok {
			return nil, false
		}
		var packaging models.Packaging
		if l.Packaging != "" {
			p, err := models.ParsePackaging(l.Packaging)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return nil, false
			}
			packaging = p
		}
		inputs = append(inputs, deliveries.LineInput{Item: item, Quantity: l.Quantity, Packaging: packaging})
	}
	return inputs, true
}

// Create records one box restock with server-side pricing.
func (h *DeliveryHandler) Create(c *gin.Context) {
	var req createDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "location, box and lines are required"})
		return
	}

	location, ok := parseID(c, req.Location)
	if !ok {
		return
	}
	box, ok := parseID(c, req.Box)
	if !ok {
		return
	}
	var visit *primitive.ObjectID
	if req.Visit != "" {
		id, ok := parseID(c, req.Visit)
		if !ok {
			return
		}
		visit = &id
	}
	lines, ok := parseLines(c, req.Lines)
	if !ok {
		return
	}

	created, err := h.svc.Create(c.Request.Context(), deliveries.CreateRequest{
		Location:    location,
		Box:         box,
		Visit:       visit,
		RepName:     req.RepName,
		DeliveredAt: req.DeliveredAt,
		Lines:       lines,
	})
	if err != nil {
		if errors.Is(err, deliveries.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("create delivery failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create delivery failed"})
		return
	}

	c.JSON(http.StatusCreated, created)
}

// Get loads one delivery.
func (h *DeliveryHandler) Get(c *gin.Context) {
	id, ok := parseID(c, c.Param("id"))
	if !ok {
		return
	}

	d, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, deliveries.ErrDeliveryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "delivery not found"})
			return
		}
		h.logger.Error("get delivery failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get delivery failed"})
		return
	}

	c.JSON(http.StatusOK, d)
}

type patchDeliveryRequest struct {
	Lines []lineRequest `json:"lines" binding:"required"`
}

// Patch replaces a delivery's lines and returns the repriced document.
func (h *DeliveryHandler) Patch(c *gin.Context) {
	id, ok := parseID(c, c.Param("id"))
	if !ok {
		return
	}

	var req patchDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lines are required"})
		return
	}
	lines, ok := parseLines(c, req.Lines)
	if !ok {
		return
	}

	updated, err := h.svc.Patch(c.Request.Context(), id, lines)
	if err != nil {
		switch {
		case errors.Is(err, deliveries.ErrDeliveryNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "delivery not found"})
		case errors.Is(err, deliveries.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("patch delivery failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "patch delivery failed"})
		}
		return
	}

	c.JSON(http.StatusOK, updated)
}

// List returns one page of deliveries with optional filters.
func (h *DeliveryHandler) List(c *gin.Context) {
	req := deliveries.ListRequest{}

	if raw := c.Query("location"); raw != "" {
		id, ok := parseID(c, raw)
		if !ok {
			return
		}
		req.Location = &id
	}
	if raw := c.Query("repId"); raw != "" {
		id, ok := parseID(c, raw)
		if !ok {
			return
		}
		req.Rep = &id
	} else {
		req.RepName = c.Query("repName")
	}
	if from, ok := parseDayStart(c.Query("from")); ok {
		req.From = &from
	}
	if to, ok := parseDayEnd(c.Query("to")); ok {
		req.To = &to
	}
	req.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	req.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))

	page, err := h.svc.List(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("list deliveries failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list deliveries"})
		return
	}
	if page.Data == nil {
		page.Data = []models.Delivery{}
	}

	c.JSON(http.StatusOK, page)
}
