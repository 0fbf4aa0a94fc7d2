// internal/model/batch.go
package model

import (
	"time"

	"github.com/google/uuid"
)

type Batch struct {
	ID                      uuid.UUID   `db:"id" json:"id"`
	UTCOffset               float64     `db:"utc_offset" json:"utc_offset"`
	ScheduledProcessingTime time.Time   `db:"scheduled_processing_time" json:"scheduled_processing_time"`
	JobID                   *string     `db:"job_id" json:"job_id,omitempty"`
	CreatedAt               time.Time   `db:"created_at" json:"created_at"`
	TaskIDs                 []uuid.UUID `db:"-" json:"task_ids"`
}

// BatchJob is the payload handed to the scheduled job queue for one batch.
type BatchJob struct {
	BatchID    uuid.UUID        `json:"batch_id"`
	UTCOffset  float64          `json:"utc_offset"`
	Recipients []BatchRecipient `json:"recipients"`
}

// BatchRecipient pairs a registered task with the row data the dispatcher needs.
type BatchRecipient struct {
	TaskID uuid.UUID `json:"task_id"`
	Recipient
}
