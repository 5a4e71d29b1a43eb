// Package mongodb persists the restock domain: catalog, visits, deliveries.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collUsers      = "users"
	collLocations  = "locations"
	collBoxes      = "boxes"
	collItems      = "items"
	collVisits     = "visits"
	collDeliveries = "deliveries"
)

// Store is a MongoDB-backed repository for the restock domain.
type Store struct {
	client *mongo.Client
	dbName string
}

// NewStore connects to MongoDB and verifies the connection.
func NewStore(ctx context.Context, uri string, dbName string) (*Store, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &Store{client: client, dbName: dbName}, nil
}

func (s *Store) coll(name string) *mongo.Collection {
	return s.client.Database(s.dbName).Collection(name)
}

// Close closes the MongoDB connection.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
