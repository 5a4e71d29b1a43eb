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
	"github.com/mamadbah2/refill/internal/repository/mongodb"
	"github.com/mamadbah2/refill/internal/service/visits"
)

// RepIDKey is the gin context key holding the authenticated rep id. The
// fronting auth layer sets the X-Rep-ID header; this core trusts it and
// never accepts a rep id from a request body.
const RepIDKey = "repID"

// VisitHandler exposes the visit state machine over HTTP.
type VisitHandler struct {
	svc    *visits.Service
	logger *zap.Logger
}

// NewVisitHandler constructs the HTTP adapter for visits.
func NewVisitHandler(svc *visits.Service, logger *zap.Logger) *VisitHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VisitHandler{svc: svc, logger: logger}
}

func repID(c *gin.Context) (primitive.ObjectID, bool) {
	v, ok := c.Get(RepIDKey)
	if !ok {
		return primitive.NilObjectID, false
	}
	id, ok := v.(primitive.ObjectID)
	return id, ok
}

func parseID(c *gin.Context, raw string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return primitive.NilObjectID, false
	}
	return id, true
}

type startVisitRequest struct {
	Location string `json:"location" binding:"required"`
}

// Start creates or resumes the rep's open visit at a location.
func (h *VisitHandler) Start(c *gin.Context) {
	rep, ok := repID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return
	}

	var req startVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "location is required"})
		return
	}
	location, ok := parseID(c, req.Location)
	if !ok {
		return
	}

	visit, err := h.svc.Start(c.Request.Context(), rep, location)
	if err != nil {
		if errors.Is(err, visits.ErrUnknownRep) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown rep"})
			return
		}
		if errors.Is(err, visits.ErrLocationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "location not found"})
			return
		}
		h.logger.Error("start visit failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "start visit failed"})
		return
	}

	c.JSON(http.StatusCreated, visit)
}

// Get returns a visit together with its per-box coverage.
func (h *VisitHandler) Get(c *gin.Context) {
	id, ok := parseID(c, c.Param("id"))
	if !ok {
		return
	}

	detail, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, visits.ErrVisitNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "visit not found"})
			return
		}
		h.logger.Error("get visit failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get visit failed"})
		return
	}

	c.JSON(http.StatusOK, detail)
}

type noteRequest struct {
	Note string `json:"note"`
}

// Note overwrites the visit's free-text note.
func (h *VisitHandler) Note(c *gin.Context) {
	id, ok := parseID(c, c.Param("id"))
	if !ok {
		return
	}

	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	visit, err := h.svc.SetNote(c.Request.Context(), id, req.Note)
	if err != nil {
		if errors.Is(err, visits.ErrVisitNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "visit not found"})
			return
		}
		h.logger.Error("set note failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "set note failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "visit": visit})
}

type submitRequest struct {
	Outcome string  `json:"outcome"`
	Note    *string `json:"note"`
}

// Submit finalizes a visit. A completed outcome is rejected with the list of
// missing boxes while any box lacks a delivery.
func (h *VisitHandler) Submit(c *gin.Context) {
	id, ok := parseID(c, c.Param("id"))
	if !ok {
		return
	}

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Outcome == "" {
		req.Outcome = string(models.OutcomeCompleted)
	}

	visit, err := h.svc.Submit(c.Request.Context(), id, models.Outcome(req.Outcome), req.Note)
	if err != nil {
		var covErr *visits.CoverageError
		switch {
		case errors.Is(err, visits.ErrVisitNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "visit not found"})
		case errors.Is(err, visits.ErrInvalidOutcome):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid outcome; use one of: completed, partial, no_access, skipped"})
		case errors.As(err, &covErr):
			missing := make([]gin.H, 0, len(covErr.Missing))
			for _, b := range covErr.Missing {
				missing = append(missing, gin.H{"id": b.BoxID, "label": b.Label})
			}
			c.JSON(http.StatusBadRequest, gin.H{
				"error":        covErr.Error(),
				"missingBoxes": missing,
			})
		default:
			h.logger.Error("submit visit failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "submit visit failed"})
		}
		return
	}

	c.JSON(http.StatusOK, visit)
}

// List returns recent visits with optional location/rep/date filters.
func (h *VisitHandler) List(c *gin.Context) {
	filter := mongodb.VisitFilter{}

	if raw := c.Query("location"); raw != "" {
		id, ok := parseID(c, raw)
		if !ok {
			return
		}
		filter.Location = &id
	}
	if raw := c.Query("repId"); raw != "" {
		id, ok := parseID(c, raw)
		if !ok {
			return
		}
		filter.Rep = &id
	}
	if from, ok := parseDayStart(c.Query("from")); ok {
		filter.From = &from
	}
	if to, ok := parseDayEnd(c.Query("to")); ok {
		filter.To = &to
	}
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Limit = n
		}
	}

	list, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("list visits failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list visits"})
		return
	}
	if list == nil {
		list = []models.Visit{}
	}

	c.JSON(http.StatusOK, list)
}

func parseDayStart(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func parseDayEnd(raw string) (time.Time, bool) {
	t, ok := parseDayStart(raw)
	if !ok {
		return time.Time{}, false
	}
	return t.Add(24*time.Hour - time.Millisecond), true
}
