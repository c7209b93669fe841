//go:build integration

package containers

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/iliyamo/training-management/internal/database"
)

// MongoContainer wraps a testcontainers MongoDB instance.
type MongoContainer struct {
	Container testcontainers.Container
	URI       string
	Client    *mongo.Client
}

var dbSeq atomic.Int64

// NewMongoContainer starts a new single-node MongoDB container and connects
// to it the way the server does.
func NewMongoContainer(t *testing.T) *MongoContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcmongo.Run(ctx, "mongo:7")
	if err != nil {
		t.Fatalf("failed to start mongo container: %v", err)
	}

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get mongo connection string: %v", err)
	}

	client, err := database.Open(ctx, uri)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to connect to mongo: %v", err)
	}

	return &MongoContainer{Container: container, URI: uri, Client: client}
}

// FreshDatabase returns an empty database with the application indexes.
// It is dropped when the test ends.
func (m *MongoContainer) FreshDatabase(t *testing.T) *mongo.Database {
	t.Helper()

	ctx := context.Background()
	name := fmt.Sprintf("tms_test_%d_%d", time.Now().UnixNano(), dbSeq.Add(1))
	db := m.Client.Database(name)
	if err := database.EnsureIndexes(ctx, db); err != nil {
		t.Fatalf("failed to create indexes: %v", err)
	}
	t.Cleanup(func() { _ = db.Drop(context.Background()) })
	return db
}
