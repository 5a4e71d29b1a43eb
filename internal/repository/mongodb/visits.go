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

// FindOpenVisit returns the open visit for the rep+location pair, or
// ErrNotFound when none exists.
func (s *Store) FindOpenVisit(ctx context.Context, rep, location primitive.ObjectID) (models.Visit, error) {
	filter := bson.M{"rep": rep, "location": location, "status": models.VisitOpen}
	var visit models.Visit
	err := s.coll(collVisits).FindOne(ctx, filter).Decode(&visit)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Visit{}, ErrNotFound
	}
	if err != nil {
		return models.Visit{}, fmt.Errorf("find open visit: %w", err)
	}
	return visit, nil
}

// InsertVisit stores a new visit and returns it with its assigned id.
func (s *Store) InsertVisit(ctx context.Context, visit models.Visit) (models.Visit, error) {
	res, err := s.coll(collVisits).InsertOne(ctx, visit)
	if err != nil {
		return models.Visit{}, fmt.Errorf("insert visit: %w", err)
	}
	visit.ID = res.InsertedID.(primitive.ObjectID)
	return visit, nil
}

// GetVisit loads one visit by id.
func (s *Store) GetVisit(ctx context.Context, id primitive.ObjectID) (models.Visit, error) {
	var visit models.Visit
	err := s.coll(collVisits).FindOne(ctx, bson.M{"_id": id}).Decode(&visit)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Visit{}, fmt.Errorf("visit %s: %w", id.Hex(), ErrNotFound)
	}
	if err != nil {
		return models.Visit{}, fmt.Errorf("find visit: %w", err)
	}
	return visit, nil
}

// SetVisitNote overwrites the visit's note, leaving outcome and submission
// timestamps untouched.
func (s *Store) SetVisitNote(ctx context.Context, id primitive.ObjectID, note string) (models.Visit, error) {
	after := options.After
	opts := options.FindOneAndUpdate().SetReturnDocument(after)
	var visit models.Visit
	err := s.coll(collVisits).FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"note": note}},
		opts,
	).Decode(&visit)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Visit{}, fmt.Errorf("visit %s: %w", id.Hex(), ErrNotFound)
	}
	if err != nil {
		return models.Visit{}, fmt.Errorf("set visit note: %w", err)
	}
	return visit, nil
}

// SubmitVisit finalizes an open visit with a compare-and-swap on status, the
// serialization point for racing submissions. The filter only matches while
// the visit is still open, so of two concurrent submits exactly one wins;
// the loser sees ErrNotFound here and should re-read the document.
func (s *Store) SubmitVisit(ctx context.Context, id primitive.ObjectID, outcome models.Outcome, note *string, at time.Time) (models.Visit, error) {
	set := bson.M{
		"status":      models.VisitSubmitted,
		"outcome":     outcome,
		"submittedAt": at,
	}
	if note != nil {
		set["note"] = *note
	}

	after := options.After
	opts := options.FindOneAndUpdate().SetReturnDocument(after)
	var visit models.Visit
	err := s.coll(collVisits).FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": models.VisitOpen},
		bson.M{"$set": set},
		opts,
	).Decode(&visit)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Visit{}, ErrNotFound
	}
	if err != nil {
		return models.Visit{}, fmt.Errorf("submit visit: %w", err)
	}
	return visit, nil
}

// VisitFilter narrows a visit listing.
type VisitFilter struct {
	Location *primitive.ObjectID
	Rep      *primitive.ObjectID
	From     *time.Time
	To       *time.Time
	Limit    int
}

// ListVisits returns recent visits matching the filter, newest first.
func (s *Store) ListVisits(ctx context.Context, filter VisitFilter) ([]models.Visit, error) {
	q := bson.M{}
	if filter.Location != nil {
		q["location"] = *filter.Location
	}
	if filter.Rep != nil {
		q["rep"] = *filter.Rep
	}
	if filter.From != nil || filter.To != nil {
		dateRange := bson.M{}
		if filter.From != nil {
			dateRange["$gte"] = *filter.From
		}
		if filter.To != nil {
			dateRange["$lte"] = *filter.To
		}
		q["startedAt"] = dateRange
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 5
	}
	if limit > 200 {
		limit = 200
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "submittedAt", Value: -1}, {Key: "startedAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.coll(collVisits).Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("find visits: %w", err)
	}
	var visits []models.Visit
	if err := cur.All(ctx, &visits); err != nil {
		return nil, fmt.Errorf("decode visits: %w", err)
	}
	return visits, nil
}
