package model

import "time"

// Batch statuses.  New batches start active.
const (
	BatchStatusActive    = "active"
	BatchStatusCompleted = "completed"
	BatchStatusArchived  = "archived"
)

// Batch is a cohort of students, stored in the `batches` collection.
// BatchCode is a short human code such as "B417".
type Batch struct {
	ID          string     `bson:"_id" json:"id"`
	BatchCode   string     `bson:"batch_code" json:"batchCode"`
	Name        string     `bson:"name" json:"name"`
	Description *string    `bson:"description,omitempty" json:"description,omitempty"`
	StartDate   time.Time  `bson:"start_date" json:"startDate"`
	EndDate     *time.Time `bson:"end_date,omitempty" json:"endDate,omitempty"`
	Status      string     `bson:"status" json:"status"`
	CreatedAt   time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updatedAt"`
}
