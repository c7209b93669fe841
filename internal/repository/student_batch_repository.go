package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iliyamo/training-management/internal/database"
	"github.com/iliyamo/training-management/internal/model"
)

// StudentBatchRepo persists membership links.
type StudentBatchRepo struct{ col *mongo.Collection }

func NewStudentBatchRepo(db *mongo.Database) *StudentBatchRepo {
	return &StudentBatchRepo{col: db.Collection(database.StudentBatchesCollection)}
}

// Assign links a student to a batch.  Assigning an existing pair returns
// the existing link unchanged.
func (r *StudentBatchRepo) Assign(ctx context.Context, studentID, batchID string) (model.StudentBatch, error) {
	link := model.StudentBatch{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		BatchID:    batchID,
		EnrolledAt: time.Now().UTC(),
	}
	_, err := r.col.InsertOne(ctx, link)
	if err == nil {
		return link, nil
	}
	if !duplicateOn(err, "uniq_student_batch") {
		return model.StudentBatch{}, err
	}
	var existing model.StudentBatch
	err = r.col.FindOne(ctx, bson.M{"student_id": studentID, "batch_id": batchID}).Decode(&existing)
	return existing, notFound(err)
}

// RemoveByStudent deletes every link of a student.
func (r *StudentBatchRepo) RemoveByStudent(ctx context.Context, studentID string) error {
	_, err := r.col.DeleteMany(ctx, bson.M{"student_id": studentID})
	return err
}

// ListByBatch returns every link of a batch.
func (r *StudentBatchRepo) ListByBatch(ctx context.Context, batchID string) ([]model.StudentBatch, error) {
	return r.find(ctx, bson.M{"batch_id": batchID})
}

// ListByStudent returns every link of a student, oldest enrollment first.
func (r *StudentBatchRepo) ListByStudent(ctx context.Context, studentID string) ([]model.StudentBatch, error) {
	return r.find(ctx, bson.M{"student_id": studentID})
}

func (r *StudentBatchRepo) find(ctx context.Context, filter bson.M) ([]model.StudentBatch, error) {
	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "enrolled_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []model.StudentBatch
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
