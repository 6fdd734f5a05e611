package notification

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	// KindAppointmentReminder is emitted for confirmed appointments coming up
	// inside the reminder lookahead window.
	KindAppointmentReminder Kind = "appointment_reminder"
	// KindReviewPrompt is emitted for appointments completed on the previous
	// calendar day.
	KindReviewPrompt Kind = "review_prompt"
)

type Notification struct {
	ID          uuid.UUID
	RecipientID uuid.UUID
	Kind        Kind
	Title       string
	Message     string
	// RelatedEntityID is the appointment that triggered the notification.
	// Together with Kind it forms the deduplication key: at most one
	// notification may exist per (RelatedEntityID, Kind) pair.
	RelatedEntityID uuid.UUID
	// IsRead is mutated by external read-receipt flows only.
	IsRead    bool
	CreatedAt time.Time
}
