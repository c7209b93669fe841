package model

import "time"

// StudentBatch links a student to a batch (`student_batches` collection).
// The (StudentID, BatchID) pair is unique.
type StudentBatch struct {
	ID         string    `bson:"_id" json:"id"`
	StudentID  string    `bson:"student_id" json:"studentId"`
	BatchID    string    `bson:"batch_id" json:"batchId"`
	EnrolledAt time.Time `bson:"enrolled_at" json:"enrolledAt"`
}
