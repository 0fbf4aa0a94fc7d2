// internal/errors/errors.go
package appErrors

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrDuplicateRecipient is returned by the ledger when a recipient email is already tracked.
var ErrDuplicateRecipient = errors.New("recipient already registered")

// TaskNotFoundError is returned when no email task exists for the id.
type TaskNotFoundError struct {
	TaskID uuid.UUID
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("email task with ID %s not found", e.TaskID)
}

func NewTaskNotFound(id uuid.UUID) error {
	return &TaskNotFoundError{TaskID: id}
}

// ResolutionError is a timezone lookup failure. It never leaves the resolver.
type ResolutionError struct {
	Location string
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve timezone for %q: %v", e.Location, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// CompositionError is a scrape or text-generation failure.
type CompositionError struct {
	Err error
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("compose email: %v", e.Err)
}

func (e *CompositionError) Unwrap() error { return e.Err }

func NewCompositionError(err error) error {
	return &CompositionError{Err: err}
}

// DeliveryError is a connection, auth or send failure of the mail transport.
type DeliveryError struct {
	Address string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver email to %s: %v", e.Address, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func NewDeliveryError(address string, err error) error {
	return &DeliveryError{Address: address, Err: err}
}

// ValidationError is a client error surfaced with an explicit status code.
type ValidationError struct {
	Status  int
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(status int, format string, args ...any) error {
	return &ValidationError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// StatusCode maps an error to the HTTP status it should be reported with.
func StatusCode(err error) int {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Status
	}
	var nf *TaskNotFoundError
	if errors.As(err, &nf) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
