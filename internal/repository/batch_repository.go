package repository

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iliyamo/training-management/internal/database"
	"github.com/iliyamo/training-management/internal/model"
)

// codeAttempts bounds how many random codes Create tries before giving up.
// There are only 900 codes, so a crowded namespace surfaces as ErrConflict.
const codeAttempts = 5

type BatchRepo struct{ col *mongo.Collection }

func NewBatchRepo(db *mongo.Database) *BatchRepo {
	return &BatchRepo{col: db.Collection(database.BatchesCollection)}
}

// NewBatchCode returns a code of the form B100..B999.
func NewBatchCode() string {
	return fmt.Sprintf("B%03d", 100+rand.IntN(900))
}

// Create inserts b with a fresh id, code, status and timestamps.  A code
// collision is retried with a new code.
func (r *BatchRepo) Create(ctx context.Context, b *model.Batch) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = model.BatchStatusActive
	}
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now

	for i := 0; i < codeAttempts; i++ {
		b.BatchCode = NewBatchCode()
		_, err := r.col.InsertOne(ctx, b)
		if err == nil {
			return nil
		}
		if !duplicateOn(err, "uniq_batch_code") {
			return err
		}
	}
	return fmt.Errorf("allocate batch code: %w", ErrConflict)
}

// GetByID fetches a batch by id.
func (r *BatchRepo) GetByID(ctx context.Context, id string) (model.Batch, error) {
	var b model.Batch
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&b)
	return b, notFound(err)
}

// GetByIDs returns the batches among ids that exist.
func (r *BatchRepo) GetByIDs(ctx context.Context, ids []string) ([]model.Batch, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, err
	}
	var out []model.Batch
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// List returns one page of batches, optionally filtered by status, newest
// first, plus the total matching count.
func (r *BatchRepo) List(ctx context.Context, status string, p Page) ([]model.Batch, int64, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	cur, err := r.col.Find(ctx, filter, findPage(p))
	if err != nil {
		return nil, 0, err
	}
	var out []model.Batch
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Count returns the number of batches.
func (r *BatchRepo) Count(ctx context.Context) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{})
}
