package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrProviderNotFound    = errors.New("provider not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all appointment store interactions needed by the
// dispatch engine.
type Repository interface {
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)

	// FindByWindow returns appointments with the given status whose
	// scheduled_at lies in [from, to], both bounds inclusive.
	FindByWindow(ctx context.Context, status Status, from, to time.Time) ([]Appointment, error)

	// FindByDay returns appointments with the given status whose scheduled_at
	// lies in [dayStart, dayEnd), half-open so a record never matches two
	// consecutive daily runs.
	FindByDay(ctx context.Context, status Status, dayStart, dayEnd time.Time) ([]Appointment, error)

	// FindPast returns appointments with the given status whose scheduled_at
	// is strictly before the given instant.
	FindPast(ctx context.Context, status Status, before time.Time) ([]Appointment, error)

	// CompareAndSetStatus transitions the appointment from expected to next
	// only if its stored status still equals expected. It reports whether the
	// update applied; false with a nil error means the record moved on
	// concurrently and the write was skipped.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next Status) (bool, error)
}
