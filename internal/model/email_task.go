// internal/model/email_task.go
package model

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskScheduled     TaskStatus = "scheduled"
	TaskSent          TaskStatus = "sent"
	TaskOpened        TaskStatus = "opened"
	TaskSendingFailed TaskStatus = "sending_failed"
)

// Content markers stored instead of a composed email.
const (
	ContentNotEnglish = "Not English Company name"
	ContentError      = "ERROR"
)

func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskScheduled, TaskSent, TaskOpened, TaskSendingFailed:
		return true
	}
	return false
}

type EmailTask struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	RecipientEmail string     `db:"recipient_email" json:"recipient_email"`
	BatchID        *uuid.UUID `db:"batch_id" json:"batch_id,omitempty"`
	EmailContent   *string    `db:"email_content" json:"email_content,omitempty"`
	Status         TaskStatus `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
