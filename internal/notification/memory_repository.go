package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type dedupKey struct {
	relatedEntityID uuid.UUID
	kind            Kind
}

// MemoryRepository is an in-memory Repository used by tests and the
// simulator. It enforces the same (related entity, kind) uniqueness a
// Postgres unique index would.
type MemoryRepository struct {
	mu     sync.Mutex
	byKey  map[dedupKey]Notification
	create int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byKey: make(map[dedupKey]Notification),
	}
}

func (r *MemoryRepository) ExistsFor(_ context.Context, appointmentID uuid.UUID, kind Kind) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.byKey[dedupKey{relatedEntityID: appointmentID, kind: kind}]
	return ok, nil
}

func (r *MemoryRepository) Create(_ context.Context, n Notification) (*Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := dedupKey{relatedEntityID: n.RelatedEntityID, kind: n.Kind}
	if _, ok := r.byKey[key]; ok {
		return nil, ErrAlreadyExists
	}

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	r.byKey[key] = n
	r.create++
	return &n, nil
}

// GetFor returns the stored notification for an appointment and kind, if any.
func (r *MemoryRepository) GetFor(appointmentID uuid.UUID, kind Kind) (*Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.byKey[dedupKey{relatedEntityID: appointmentID, kind: kind}]
	if !ok {
		return nil, false
	}
	return &n, true
}

// Count returns the number of stored notifications.
func (r *MemoryRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey)
}

// Created returns how many Create calls actually stored a notification.
func (r *MemoryRepository) Created() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.create
}
