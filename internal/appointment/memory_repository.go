package appointment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository used by tests and the
// simulator. All operations are guarded by a single mutex, so
// CompareAndSetStatus is atomic with respect to concurrent readers.
type MemoryRepository struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]Appointment
	providers    map[uuid.UUID]Provider
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appointments: make(map[uuid.UUID]Appointment),
		providers:    make(map[uuid.UUID]Provider),
	}
}

func (r *MemoryRepository) AddProvider(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID] = p
}

func (r *MemoryRepository) AddAppointment(a Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments[a.ID] = a
}

// GetAppointmentByID is not part of the Repository interface; tests use it to
// assert on stored state.
func (r *MemoryRepository) GetAppointmentByID(id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) GetProviderByID(_ context.Context, id uuid.UUID) (*Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) FindByWindow(_ context.Context, status Status, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.Status != status {
			continue
		}
		if a.ScheduledAt.Before(from) || a.ScheduledAt.After(to) {
			continue
		}
		result = append(result, a)
	}
	return result, nil
}

func (r *MemoryRepository) FindByDay(_ context.Context, status Status, dayStart, dayEnd time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.Status != status {
			continue
		}
		if a.ScheduledAt.Before(dayStart) || !a.ScheduledAt.Before(dayEnd) {
			continue
		}
		result = append(result, a)
	}
	return result, nil
}

func (r *MemoryRepository) FindPast(_ context.Context, status Status, before time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.Status == status && a.ScheduledAt.Before(before) {
			result = append(result, a)
		}
	}
	return result, nil
}

func (r *MemoryRepository) CompareAndSetStatus(_ context.Context, id uuid.UUID, expected, next Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return false, ErrAppointmentNotFound
	}
	if a.Status != expected {
		return false, nil
	}

	a.Status = next
	a.UpdatedAt = time.Now()
	r.appointments[id] = a
	return true, nil
}
