package notification

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrAlreadyExists is returned by Create when a notification with the same
// (related entity, kind) pair is already stored. Dispatchers treat it as a
// success no-op.
var ErrAlreadyExists = errors.New("notification already exists for entity and kind")

// Repository contains all notification store interactions needed by the
// dispatch engine.
type Repository interface {
	// ExistsFor reports whether a notification already exists for the given
	// appointment and kind.
	ExistsFor(ctx context.Context, appointmentID uuid.UUID, kind Kind) (bool, error)

	// Create stores a new notification. Implementations backed by a store
	// with a unique (related_entity_id, kind) constraint return
	// ErrAlreadyExists on a duplicate instead of a bare driver error.
	Create(ctx context.Context, n Notification) (*Notification, error)
}
