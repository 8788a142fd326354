package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ---- Abstractions for Testability ----

// ChangeStream is the subset of *mongo.ChangeStream the store reads.
type ChangeStream interface {
	Next(ctx context.Context) bool
	Decode(val interface{}) error
	Err() error
	Close(ctx context.Context) error
}

// DataStore defines the collection operations the store needs.
type DataStore interface {
	ReplaceOne(
		ctx context.Context,
		filter interface{},
		replacement interface{},
		opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	DeleteOne(
		ctx context.Context,
		filter interface{},
		opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	FindRaw(ctx context.Context, filter interface{}) (bson.Raw, error)
	Watch(
		ctx context.Context,
		pipeline interface{},
		opts ...*options.ChangeStreamOptions) (ChangeStream, error)
}

// MongoCollection adapts *mongo.Collection to DataStore.
type MongoCollection struct {
	*mongo.Collection
}

func NewCollection(client *mongo.Client, database, collection string) *MongoCollection {
	return &MongoCollection{client.Database(database).Collection(collection)}
}

// ReplaceOne replaces a single document.
func (c *MongoCollection) ReplaceOne(
	ctx context.Context,
	filter interface{},
	replacement interface{},
	opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
	result, err := c.Collection.ReplaceOne(ctx, filter, replacement, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to perform ReplaceOne: %w", err)
	}

	return result, nil
}

// DeleteOne deletes a single document.
func (c *MongoCollection) DeleteOne(
	ctx context.Context,
	filter interface{},
	opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	result, err := c.Collection.DeleteOne(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to perform DeleteOne: %w", err)
	}

	return result, nil
}

// FindRaw returns the first matching document undecoded.
func (c *MongoCollection) FindRaw(ctx context.Context, filter interface{}) (bson.Raw, error) {
	raw, err := c.Collection.FindOne(ctx, filter).Raw()
	if err != nil {
		return nil, fmt.Errorf("failed to perform FindOne: %w", err)
	}

	return raw, nil
}

// Watch opens a change stream on the collection.
func (c *MongoCollection) Watch(
	ctx context.Context,
	pipeline interface{},
	opts ...*options.ChangeStreamOptions) (ChangeStream, error) {
	cs, err := c.Collection.Watch(ctx, pipeline, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open change stream: %w", err)
	}

	return cs, nil
}

// Connect establishes a connection to MongoDB.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	clientOptions := options.Client().ApplyURI(uri)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	err = client.Ping(ctx, nil)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client, nil
}
