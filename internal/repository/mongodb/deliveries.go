package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/refill/internal/domain/models"
)

// InsertDelivery stores a new delivery and returns it with its assigned id.
func (s *Store) InsertDelivery(ctx context.Context, d models.Delivery) (models.Delivery, error) {
	res, err := s.coll(collDeliveries).InsertOne(ctx, d)
	if err != nil {
		return models.Delivery{}, fmt.Errorf("insert delivery: %w", err)
	}
	d.ID = res.InsertedID.(primitive.ObjectID)
	return d, nil
}

// GetDelivery loads one delivery by id.
func (s *Store) GetDelivery(ctx context.Context, id primitive.ObjectID) (models.Delivery, error) {
	var d models.Delivery
	err := s.coll(collDeliveries).FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Delivery{}, fmt.Errorf("delivery %s: %w", id.Hex(), ErrNotFound)
	}
	if err != nil {
		return models.Delivery{}, fmt.Errorf("find delivery: %w", err)
	}
	return d, nil
}

// ListDeliveriesByVisit returns every delivery recorded against the visit.
// Deliveries without a visit reference are never included.
func (s *Store) ListDeliveriesByVisit(ctx context.Context, visit primitive.ObjectID) ([]models.Delivery, error) {
	cur, err := s.coll(collDeliveries).Find(ctx, bson.M{"visit": visit})
	if err != nil {
		return nil, fmt.Errorf("find deliveries by visit: %w", err)
	}
	var deliveries []models.Delivery
	if err := cur.All(ctx, &deliveries); err != nil {
		return nil, fmt.Errorf("decode deliveries: %w", err)
	}
	return deliveries, nil
}

// ReplaceDeliveryLines swaps a delivery's lines and totals wholesale. The
// delivery's identity and box/location binding never change.
func (s *Store) ReplaceDeliveryLines(ctx context.Context, id primitive.ObjectID, lines []models.DeliveryLine, subtotal, tax, total float64) (models.Delivery, error) {
	after := options.After
	opts := options.FindOneAndUpdate().SetReturnDocument(after)
	var d models.Delivery
	err := s.coll(collDeliveries).FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"lines":    lines,
			"subtotal": subtotal,
			"tax":      tax,
			"total":    total,
		}},
		opts,
	).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Delivery{}, fmt.Errorf("delivery %s: %w", id.Hex(), ErrNotFound)
	}
	if err != nil {
		return models.Delivery{}, fmt.Errorf("replace delivery lines: %w", err)
	}
	return d, nil
}

// DeliveryFilter narrows a delivery listing.
type DeliveryFilter struct {
	Location *primitive.ObjectID
	Visits   []primitive.ObjectID
	RepName  string
	From     *time.Time
	To       *time.Time
}

func (f DeliveryFilter) query() bson.M {
	q := bson.M{}
	if f.Location != nil {
		q["location"] = *f.Location
	}
	if len(f.Visits) > 0 {
		q["visit"] = bson.M{"$in": f.Visits}
	}
	if f.RepName != "" {
		q["repName"] = bson.M{"$regex": f.RepName, "$options": "i"}
	}
	if f.From != nil || f.To != nil {
		dateRange := bson.M{}
		if f.From != nil {
			dateRange["$gte"] = *f.From
		}
		if f.To != nil {
			dateRange["$lte"] = *f.To
		}
		q["deliveredAt"] = dateRange
	}
	return q
}

// ListDeliveries returns one page of deliveries matching the filter, newest
// first, plus the paging metadata.
func (s *Store) ListDeliveries(ctx context.Context, filter DeliveryFilter, page, limit int) (models.DeliveryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	q := filter.query()
	total, err := s.coll(collDeliveries).CountDocuments(ctx, q)
	if err != nil {
		return models.DeliveryPage{}, fmt.Errorf("count deliveries: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "deliveredAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))
	cur, err := s.coll(collDeliveries).Find(ctx, q, opts)
	if err != nil {
		return models.DeliveryPage{}, fmt.Errorf("find deliveries: %w", err)
	}
	var deliveries []models.Delivery
	if err := cur.All(ctx, &deliveries); err != nil {
		return models.DeliveryPage{}, fmt.Errorf("decode deliveries: %w", err)
	}

	return models.DeliveryPage{
		Data: deliveries,
		PageInfo: models.PageInfo{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasMore: int64(page*limit) < total,
		},
	}, nil
}

// VisitIDsByRep returns the ids of every visit owned by the rep, for
// rep-scoped delivery listings.
func (s *Store) VisitIDsByRep(ctx context.Context, rep primitive.ObjectID) ([]primitive.ObjectID, error) {
	cur, err := s.coll(collVisits).Find(ctx, bson.M{"rep": rep},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("find visits by rep: %w", err)
	}
	var rows []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode visit ids: %w", err)
	}
	ids := make([]primitive.ObjectID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}
