// Package deliveries creates and reprices box restock records. Line prices
// are always recomputed server-side from the catalog; client-supplied
// prices are estimates and never trusted.
package deliveries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/mamadbah2/refill/internal/domain/models"
	"github.com/mamadbah2/refill/internal/pricing"
	"github.com/mamadbah2/refill/internal/repository/mongodb"
)

// ErrValidation indicates a malformed create or patch request.
var ErrValidation = errors.New("validation failed")

// ErrDeliveryNotFound indicates the delivery does not exist.
var ErrDeliveryNotFound = errors.New("delivery not found")

// Store is the persistence surface the delivery service needs.
type Store interface {
	GetItem(ctx context.Context, id primitive.ObjectID) (models.Item, error)
	GetBox(ctx context.Context, id primitive.ObjectID) (models.Box, error)
	GetVisit(ctx context.Context, id primitive.ObjectID) (models.Visit, error)
	InsertDelivery(ctx context.Context, d models.Delivery) (models.Delivery, error)
	GetDelivery(ctx context.Context, id primitive.ObjectID) (models.Delivery, error)
	ReplaceDeliveryLines(ctx context.Context, id primitive.ObjectID, lines []models.DeliveryLine, subtotal, tax, total float64) (models.Delivery, error)
	ListDeliveries(ctx context.Context, filter mongodb.DeliveryFilter, page, limit int) (models.DeliveryPage, error)
	VisitIDsByRep(ctx context.Context, rep primitive.ObjectID) ([]primitive.ObjectID, error)
}

// Service implements delivery creation, repricing and listing.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService constructs a delivery service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// LineInput is one unpriced cart line as submitted by the client.
type LineInput struct {
	Item      primitive.ObjectID
	Quantity  float64
	Packaging models.Packaging
}

// CreateRequest is the payload for recording one box restock.
type CreateRequest struct {
	Location    primitive.ObjectID
	Box         primitive.ObjectID
	Visit       *primitive.ObjectID
	RepName     string
	DeliveredAt *time.Time
	Lines       []LineInput
}

func (s *Service) priceLines(ctx context.Context, inputs []LineInput) ([]models.DeliveryLine, float64, float64, error) {
	if len(inputs) == 0 {
		return nil, 0, 0, fmt.Errorf("%w: lines must have at least one item", ErrValidation)
	}

	reqs := make([]pricing.LineRequest, 0, len(inputs))
	for _, in := range inputs {
		item, err := s.store.GetItem(ctx, in.Item)
		if err != nil {
			if errors.Is(err, mongodb.ErrNotFound) {
				return nil, 0, 0, fmt.Errorf("%w: item not found: %s", ErrValidation, in.Item.Hex())
			}
			return nil, 0, 0, err
		}
		reqs = append(reqs, pricing.LineRequest{Item: item, Quantity: in.Quantity, Packaging: in.Packaging})
	}

	lines, subtotal, total, err := pricing.PriceLines(reqs)
	if err != nil {
		if errors.Is(err, pricing.ErrInvalidQuantity) {
			return nil, 0, 0, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, 0, 0, err
	}
	return lines, subtotal, total, nil
}

// Create validates the box/visit bindings, prices the cart and persists the
// delivery.
func (s *Service) Create(ctx context.Context, req CreateRequest) (models.Delivery, error) {
	box, err := s.store.GetBox(ctx, req.Box)
	if err != nil {
		if errors.Is(err, mongodb.ErrNotFound) {
			return models.Delivery{}, fmt.Errorf("%w: box not found", ErrValidation)
		}
		return models.Delivery{}, err
	}
	if box.Location != req.Location {
		return models.Delivery{}, fmt.Errorf("%w: box does not belong to the location", ErrValidation)
	}

	if req.Visit != nil {
		visit, err := s.store.GetVisit(ctx, *req.Visit)
		if err != nil {
			if errors.Is(err, mongodb.ErrNotFound) {
				return models.Delivery{}, fmt.Errorf("%w: visit not found", ErrValidation)
			}
			return models.Delivery{}, err
		}
		if visit.Location != req.Location {
			return models.Delivery{}, fmt.Errorf("%w: visit is at a different location", ErrValidation)
		}
	}

	lines, subtotal, total, err := s.priceLines(ctx, req.Lines)
	if err != nil {
		return models.Delivery{}, err
	}

	deliveredAt := s.now()
	if req.DeliveredAt != nil {
		deliveredAt = *req.DeliveredAt
	}

	created, err := s.store.InsertDelivery(ctx, models.Delivery{
		RepName:     req.RepName,
		DeliveredAt: deliveredAt,
		Location:    req.Location,
		Box:         req.Box,
		Visit:       req.Visit,
		Lines:       lines,
		Subtotal:    subtotal,
		Tax:         0,
		Total:       total,
	})
	if err != nil {
		return models.Delivery{}, err
	}

	s.logger.Info("delivery recorded",
		zap.String("delivery", created.ID.Hex()),
		zap.String("box", created.Box.Hex()),
		zap.Int("lines", len(created.Lines)),
		zap.Float64("total", created.Total))
	return created, nil
}

// Patch replaces a delivery's lines wholesale and reprices the totals. The
// delivery keeps its identity and box/location binding.
func (s *Service) Patch(ctx context.Context, id primitive.ObjectID, inputs []LineInput) (models.Delivery, error) {
	if _, err := s.store.GetDelivery(ctx, id); err != nil {
		if errors.Is(err, mongodb.ErrNotFound) {
			return models.Delivery{}, ErrDeliveryNotFound
		}
		return models.Delivery{}, err
	}

	lines, subtotal, total, err := s.priceLines(ctx, inputs)
	if err != nil {
		return models.Delivery{}, err
	}

	updated, err := s.store.ReplaceDeliveryLines(ctx, id, lines, subtotal, 0, total)
	if err != nil {
		if errors.Is(err, mongodb.ErrNotFound) {
			return models.Delivery{}, ErrDeliveryNotFound
		}
		return models.Delivery{}, err
	}

	s.logger.Info("delivery repriced",
		zap.String("delivery", updated.ID.Hex()),
		zap.Float64("total", updated.Total))
	return updated, nil
}

// Get loads one delivery.
func (s *Service) Get(ctx context.Context, id primitive.ObjectID) (models.Delivery, error) {
	d, err := s.store.GetDelivery(ctx, id)
	if errors.Is(err, mongodb.ErrNotFound) {
		return models.Delivery{}, ErrDeliveryNotFound
	}
	return d, err
}

// ListRequest narrows and pages a delivery listing.
type ListRequest struct {
	Location *primitive.ObjectID
	Rep      *primitive.ObjectID
	RepName  string
	From     *time.Time
	To       *time.Time
	Page     int
	Limit    int
}

// List returns one page of deliveries. A rep filter is resolved through the
// rep's visits, since deliveries carry no rep reference of their own.
func (s *Service) List(ctx context.Context, req ListRequest) (models.DeliveryPage, error) {
	filter := mongodb.DeliveryFilter{
		Location: req.Location,
		From:     req.From,
		To:       req.To,
	}
	if req.Rep != nil {
		visitIDs, err := s.store.VisitIDsByRep(ctx, *req.Rep)
		if err != nil {
			return models.DeliveryPage{}, err
		}
		if len(visitIDs) == 0 {
			page := req.Page
			if page < 1 {
				page = 1
			}
			limit := req.Limit
			if limit < 1 {
				limit = 50
			}
			return models.DeliveryPage{
				Data:     []models.Delivery{},
				PageInfo: models.PageInfo{Page: page, Limit: limit},
			}, nil
		}
		filter.Visits = visitIDs
	} else if req.RepName != "" {
		filter.RepName = req.RepName
	}

	return s.store.ListDeliveries(ctx, filter, req.Page, req.Limit)
}
