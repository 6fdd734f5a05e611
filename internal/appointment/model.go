package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusMissed    Status = "missed"
)

// IsTerminal reports whether the lifecycle engine may never transition out of
// the status. Completed and cancelled are written by external booking flows;
// missed is the one terminal state this engine writes itself.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusMissed:
		return true
	}
	return false
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Provider struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	ProviderID  uuid.UUID
	ScheduledAt time.Time
	Status      Status
	// Clinical fields are owned by external flows; the engine reads them only.
	Diagnosis *string
	Notes     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}
