package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/refill/internal/domain/models"
)

// ErrNotFound indicates the requested document does not exist.
var ErrNotFound = errors.New("not found")

// ListItems returns the full item catalog, active and inactive.
func (s *Store) ListItems(ctx context.Context) ([]models.Item, error) {
	cur, err := s.coll(collItems).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find items: %w", err)
	}
	var items []models.Item
	if err := cur.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return items, nil
}

// GetItem loads one catalog item by id.
func (s *Store) GetItem(ctx context.Context, id primitive.ObjectID) (models.Item, error) {
	var item models.Item
	err := s.coll(collItems).FindOne(ctx, bson.M{"_id": id}).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Item{}, fmt.Errorf("item %s: %w", id.Hex(), ErrNotFound)
	}
	if err != nil {
		return models.Item{}, fmt.Errorf("find item: %w", err)
	}
	return item, nil
}

// ListLocations returns locations, optionally filtered by a case-insensitive
// name substring.
func (s *Store) ListLocations(ctx context.Context, q string) ([]models.Location, error) {
	filter := bson.M{}
	if q != "" {
		filter["name"] = bson.M{"$regex": q, "$options": "i"}
	}
	cur, err := s.coll(collLocations).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find locations: %w", err)
	}
	var locations []models.Location
	if err := cur.All(ctx, &locations); err != nil {
		return nil, fmt.Errorf("decode locations: %w", err)
	}
	return locations, nil
}

// GetLocation loads one location by id.
func (s *Store) GetLocation(ctx context.Context, id primitive.ObjectID) (models.Location, error) {
	var loc models.Location
	err := s.coll(collLocations).FindOne(ctx, bson.M{"_id": id}).Decode(&loc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Location{}, fmt.Errorf("location %s: %w", id.Hex(), ErrNotFound)
	}
	if err != nil {
		return models.Location{}, fmt.Errorf("find location: %w", err)
	}
	return loc, nil
}

// ListBoxes returns every box at the given location.
func (s *Store) ListBoxes(ctx context.Context, location primitive.ObjectID) ([]models.Box, error) {
	cur, err := s.coll(collBoxes).Find(ctx, bson.M{"location": location}, options.Find().SetSort(bson.D{{Key: "label", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find boxes: %w", err)
	}
	var boxes []models.Box
	if err := cur.All(ctx, &boxes); err != nil {
		return nil, fmt.Errorf("decode boxes: %w", err)
	}
	return boxes, nil
}

// GetBox loads one box by id.
func (s *Store) GetBox(ctx context.Context, id primitive.ObjectID) (models.Box, error) {
	var box models.Box
	err := s.coll(collBoxes).FindOne(ctx, bson.M{"_id": id}).Decode(&box)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Box{}, fmt.Errorf("box %s: %w", id.Hex(), ErrNotFound)
	}
	if err != nil {
		return models.Box{}, fmt.Errorf("find box: %w", err)
	}
	return box, nil
}

// GetUser loads one user account by id.
func (s *Store) GetUser(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	var user models.User
	err := s.coll(collUsers).FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, fmt.Errorf("user %s: %w", id.Hex(), ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}
