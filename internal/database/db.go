package database // MongoDB connection and index setup

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names shared by the repositories.
const (
	UsersCollection          = "users"
	BatchesCollection        = "batches"
	StudentBatchesCollection = "student_batches"
)

// Open connects to MongoDB and verifies the connection.  The returned client
// owns the connection pool and must be disconnected on shutdown.
func Open(ctx context.Context, uri string) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(25).                        // max open connections
		SetMinPoolSize(2).                         // warm connections kept in the pool
		SetMaxConnIdleTime(30 * time.Minute).      // recycle idle connections
		SetServerSelectionTimeout(5 * time.Second) // fail fast when no server is reachable

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}

	// Ping with timeout
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background()) // release the pool before failing
		return nil, err
	}
	return client, nil
}

// EnsureIndexes creates the indexes the repositories rely on.  The unique
// indexes are what make duplicate enrollment and duplicate membership
// impossible under concurrency, so startup fails if they cannot be built.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		UsersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetName("uniq_email").SetUnique(true)},
			{Keys: bson.D{{Key: "keycloak_id", Value: 1}}, Options: options.Index().SetName("uniq_keycloak_id").SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "role", Value: 1}, {Key: "created_at", Value: -1}}, Options: options.Index().SetName("role_created")},
		},
		BatchesCollection: {
			{Keys: bson.D{{Key: "batch_code", Value: 1}}, Options: options.Index().SetName("uniq_batch_code").SetUnique(true)},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}, Options: options.Index().SetName("status_created")},
		},
		StudentBatchesCollection: {
			{Keys: bson.D{{Key: "student_id", Value: 1}, {Key: "batch_id", Value: 1}}, Options: options.Index().SetName("uniq_student_batch").SetUnique(true)},
			{Keys: bson.D{{Key: "batch_id", Value: 1}}, Options: options.Index().SetName("batch")},
		},
	}
	for coll, models := range specs {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}
