package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCompareAndSetStatusAppliesOnce(t *testing.T) {
	repo := NewMemoryRepository()
	id := uuid.New()
	repo.AddAppointment(Appointment{
		ID:          id,
		Status:      StatusConfirmed,
		ScheduledAt: time.Now().Add(-time.Hour),
	})

	// Concurrent sweeps race for the same transition; exactly one wins.
	const racers = 16
	var wg sync.WaitGroup
	applied := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.CompareAndSetStatus(context.Background(), id, StatusConfirmed, StatusMissed)
			applied <- ok && err == nil
		}()
	}
	wg.Wait()
	close(applied)

	wins := 0
	for ok := range applied {
		if ok {
			wins++
		}
	}
	require.Equal(t, 1, wins)

	got, err := repo.GetAppointmentByID(id)
	require.NoError(t, err)
	require.Equal(t, StatusMissed, got.Status)
}

func TestCompareAndSetStatusUnknownAppointment(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.CompareAndSetStatus(context.Background(), uuid.New(), StatusConfirmed, StatusMissed)
	require.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestFindQueriesFilterByStatusAndTime(t *testing.T) {
	repo := NewMemoryRepository()
	now := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)

	in := Appointment{ID: uuid.New(), Status: StatusConfirmed, ScheduledAt: now.Add(time.Hour)}
	out := Appointment{ID: uuid.New(), Status: StatusConfirmed, ScheduledAt: now.Add(48 * time.Hour)}
	wrongStatus := Appointment{ID: uuid.New(), Status: StatusPending, ScheduledAt: now.Add(time.Hour)}
	past := Appointment{ID: uuid.New(), Status: StatusConfirmed, ScheduledAt: now.Add(-time.Minute)}
	for _, a := range []Appointment{in, out, wrongStatus, past} {
		repo.AddAppointment(a)
	}

	windowed, err := repo.FindByWindow(context.Background(), StatusConfirmed, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	require.Equal(t, in.ID, windowed[0].ID)

	elapsed, err := repo.FindPast(context.Background(), StatusConfirmed, now)
	require.NoError(t, err)
	require.Len(t, elapsed, 1)
	require.Equal(t, past.ID, elapsed[0].ID)
}

func TestFindByDayIsHalfOpen(t *testing.T) {
	repo := NewMemoryRepository()
	dayStart := time.Date(2026, time.March, 13, 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	atStart := Appointment{ID: uuid.New(), Status: StatusCompleted, ScheduledAt: dayStart}
	atEnd := Appointment{ID: uuid.New(), Status: StatusCompleted, ScheduledAt: dayEnd}
	repo.AddAppointment(atStart)
	repo.AddAppointment(atEnd)

	got, err := repo.FindByDay(context.Background(), StatusCompleted, dayStart, dayEnd)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, atStart.ID, got[0].ID)
}
