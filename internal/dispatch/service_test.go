package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/careloop/appointment-lifecycle/internal/appointment"
	"github.com/careloop/appointment-lifecycle/internal/config"
	"github.com/careloop/appointment-lifecycle/internal/notification"
	redisclient "github.com/careloop/appointment-lifecycle/internal/redis"
)

var testNow = time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)

type fixture struct {
	appts  *appointment.MemoryRepository
	notifs *notification.MemoryRepository
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	appts := appointment.NewMemoryRepository()
	notifs := notification.NewMemoryRepository()
	svc := NewService(appts, notifs, redisclient.InlineLocker{}, FixedClock{T: testNow}, config.Config{
		ReminderLookahead: 24 * time.Hour,
		DispatchWorkers:   2,
	})

	return &fixture{appts: appts, notifs: notifs, svc: svc}
}

func (f *fixture) addProvider(name string) uuid.UUID {
	id := uuid.New()
	f.appts.AddProvider(appointment.Provider{ID: id, Name: name})
	return id
}

func (f *fixture) addAppointment(providerID uuid.UUID, status appointment.Status, scheduledAt time.Time) appointment.Appointment {
	a := appointment.Appointment{
		ID:          uuid.New(),
		PatientID:   uuid.New(),
		ProviderID:  providerID,
		ScheduledAt: scheduledAt,
		Status:      status,
	}
	f.appts.AddAppointment(a)
	return a
}

func TestDispatchRemindersIsIdempotent(t *testing.T) {
	f := newFixture(t)
	providerID := f.addProvider("Dr. Ada Osei")

	first := f.addAppointment(providerID, appointment.StatusConfirmed, testNow.Add(2*time.Hour))
	second := f.addAppointment(providerID, appointment.StatusConfirmed, testNow.Add(20*time.Hour))

	result, err := f.svc.DispatchReminders(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Attempted)
	require.Equal(t, 2, result.Succeeded)
	require.Empty(t, result.Failures)
	require.Equal(t, 2, f.notifs.Count())

	// A second run over the unchanged data set creates nothing new.
	result, err = f.svc.DispatchReminders(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Attempted)
	require.Equal(t, result.Attempted, result.Succeeded)
	require.Equal(t, 2, f.notifs.Count())
	require.Equal(t, 2, f.notifs.Created())

	for _, a := range []appointment.Appointment{first, second} {
		n, ok := f.notifs.GetFor(a.ID, notification.KindAppointmentReminder)
		require.True(t, ok)
		require.Equal(t, a.PatientID, n.RecipientID)
		require.Equal(t, a.ID, n.RelatedEntityID)
		require.False(t, n.IsRead)
	}
}

func TestDispatchRemindersWindowBoundaries(t *testing.T) {
	f := newFixture(t)
	providerID := f.addProvider("Dr. Ada Osei")

	atStart := f.addAppointment(providerID, appointment.StatusConfirmed, testNow)
	atEnd := f.addAppointment(providerID, appointment.StatusConfirmed, testNow.Add(24*time.Hour))
	pastEnd := f.addAppointment(providerID, appointment.StatusConfirmed, testNow.Add(24*time.Hour+time.Second))

	result, err := f.svc.DispatchReminders(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Attempted)
	require.Equal(t, 2, result.Succeeded)

	_, ok := f.notifs.GetFor(atStart.ID, notification.KindAppointmentReminder)
	require.True(t, ok)
	_, ok = f.notifs.GetFor(atEnd.ID, notification.KindAppointmentReminder)
	require.True(t, ok)
	_, ok = f.notifs.GetFor(pastEnd.ID, notification.KindAppointmentReminder)
	require.False(t, ok)
}

func TestDispatchRemindersMessageNamesProviderAndTime(t *testing.T) {
	f := newFixture(t)
	providerID := f.addProvider("Dr. Miriam Cole")

	scheduledAt := time.Date(2026, time.March, 14, 15, 30, 0, 0, time.UTC)
	a := f.addAppointment(providerID, appointment.StatusConfirmed, scheduledAt)

	_, err := f.svc.DispatchReminders(context.Background())
	require.NoError(t, err)

	n, ok := f.notifs.GetFor(a.ID, notification.KindAppointmentReminder)
	require.True(t, ok)
	require.Contains(t, n.Message, "Dr. Miriam Cole")
	require.Contains(t, n.Message, "3:30 PM")
	require.Equal(t, notification.KindAppointmentReminder, n.Kind)
}

func TestDispatchRemindersIgnoresOtherStatuses(t *testing.T) {
	f := newFixture(t)
	providerID := f.addProvider("Dr. Ada Osei")

	f.addAppointment(providerID, appointment.StatusPending, testNow.Add(time.Hour))
	f.addAppointment(providerID, appointment.StatusCancelled, testNow.Add(time.Hour))
	f.addAppointment(providerID, appointment.StatusCompleted, testNow.Add(time.Hour))

	result, err := f.svc.DispatchReminders(context.Background())
	require.NoError(t, err)
	require.Zero(t, result.Attempted)
	require.Zero(t, f.notifs.Count())
}

func TestDispatchRemindersIsolatesStoreFailure(t *testing.T) {
	f := newFixture(t)
	providerID := f.addProvider("Dr. Ada Osei")

	f.addAppointment(providerID, appointment.StatusConfirmed, testNow.Add(1*time.Hour))
	broken := f.addAppointment(providerID, appointment.StatusConfirmed, testNow.Add(2*time.Hour))
	f.addAppointment(providerID, appointment.StatusConfirmed, testNow.Add(3*time.Hour))

	flaky := &flakyNotificationRepo{MemoryRepository: f.notifs, failFor: broken.ID}
	svc := NewService(f.appts, flaky, redisclient.InlineLocker{}, FixedClock{T: testNow}, config.Config{
		ReminderLookahead: 24 * time.Hour,
		DispatchWorkers:   2,
	})

	result, err := svc.DispatchReminders(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, result.Attempted)
	require.Equal(t, 2, result.Succeeded)
	require.Len(t, result.Failures, 1)
	require.Equal(t, broken.ID, result.Failures[0].CandidateID)
	require.Contains(t, result.Failures[0].Err, "store write failed")
	require.Equal(t, 2, f.notifs.Count())
}

func TestDispatchRemindersLockBusyIsNoOp(t *testing.T) {
	f := newFixture(t)
	providerID := f.addProvider("Dr. Ada Osei")
	a := f.addAppointment(providerID, appointment.StatusConfirmed, testNow.Add(time.Hour))

	svc := NewService(f.appts, f.notifs, busyLocker{}, FixedClock{T: testNow}, config.Config{
		ReminderLookahead: 24 * time.Hour,
		DispatchWorkers:   2,
	})

	// Another run holds the candidate's lock; this run must neither fail nor
	// create a second notification.
	result, err := svc.DispatchReminders(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Attempted)
	require.Equal(t, 1, result.Succeeded)
	require.Empty(t, result.Failures)

	_, ok := f.notifs.GetFor(a.ID, notification.KindAppointmentReminder)
	require.False(t, ok)
}

func TestDispatchRemindersFlagsUnexpectedStatus(t *testing.T) {
	f := newFixture(t)
	providerID := f.addProvider("Dr. Ada Osei")
	stale := f.addAppointment(providerID, appointment.StatusPending, testNow.Add(time.Hour))
	ok := f.addAppointment(providerID, appointment.StatusConfirmed, testNow.Add(time.Hour))

	repo := &staleWindowRepo{MemoryRepository: f.appts, extra: stale}
	svc := NewService(repo, f.notifs, redisclient.InlineLocker{}, FixedClock{T: testNow}, config.Config{
		ReminderLookahead: 24 * time.Hour,
		DispatchWorkers:   1,
	})

	result, err := svc.DispatchReminders(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Attempted)
	require.Equal(t, 1, result.Succeeded)
	require.Len(t, result.Failures, 1)
	require.Equal(t, stale.ID, result.Failures[0].CandidateID)
	require.Contains(t, result.Failures[0].Err, "unexpected status")

	_, found := f.notifs.GetFor(ok.ID, notification.KindAppointmentReminder)
	require.True(t, found)
	_, found = f.notifs.GetFor(stale.ID, notification.KindAppointmentReminder)
	require.False(t, found)
}

func TestDispatchReviewPromptsDayBoundaries(t *testing.T) {
	f := newFixture(t)
	providerID := f.addProvider("Dr. Ada Osei")

	lateYesterday := f.addAppointment(providerID, appointment.StatusCompleted,
		time.Date(2026, time.March, 13, 23, 59, 59, 0, time.UTC))
	earlyToday := f.addAppointment(providerID, appointment.StatusCompleted,
		time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC))
	twoDaysAgo := f.addAppointment(providerID, appointment.StatusCompleted,
		time.Date(2026, time.March, 12, 12, 0, 0, 0, time.UTC))

	result, err := f.svc.DispatchReviewPrompts(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Attempted)
	require.Equal(t, 1, result.Succeeded)

	n, ok := f.notifs.GetFor(lateYesterday.ID, notification.KindReviewPrompt)
	require.True(t, ok)
	require.Equal(t, notification.KindReviewPrompt, n.Kind)
	require.Contains(t, n.Message, "Dr. Ada Osei")

	_, ok = f.notifs.GetFor(earlyToday.ID, notification.KindReviewPrompt)
	require.False(t, ok)
	_, ok = f.notifs.GetFor(twoDaysAgo.ID, notification.KindReviewPrompt)
	require.False(t, ok)
}

func TestDispatchReviewPromptsIsIdempotent(t *testing.T) {
	f := newFixture(t)
	providerID := f.addProvider("Dr. Ada Osei")

	f.addAppointment(providerID, appointment.StatusCompleted,
		time.Date(2026, time.March, 13, 9, 0, 0, 0, time.UTC))

	for i := 0; i < 3; i++ {
		result, err := f.svc.DispatchReviewPrompts(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, result.Attempted)
		require.Equal(t, 1, result.Succeeded)
	}

	require.Equal(t, 1, f.notifs.Count())
	require.Equal(t, 1, f.notifs.Created())
}

func TestSweepMarksElapsedConfirmedAsMissed(t *testing.T) {
	f := newFixture(t)
	providerID := f.addProvider("Dr. Ada Osei")

	elapsed := f.addAppointment(providerID, appointment.StatusConfirmed, testNow.Add(-time.Hour))
	upcoming := f.addAppointment(providerID, appointment.StatusConfirmed, testNow.Add(time.Hour))

	result, err := f.svc.SweepMissedAppointments(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Attempted)
	require.Equal(t, 1, result.Succeeded)

	got, err := f.appts.GetAppointmentByID(elapsed.ID)
	require.NoError(t, err)
	require.Equal(t, appointment.StatusMissed, got.Status)

	got, err = f.appts.GetAppointmentByID(upcoming.ID)
	require.NoError(t, err)
	require.Equal(t, appointment.StatusConfirmed, got.Status)

	// Sweeping again finds no confirmed candidates; the missed record stays put.
	result, err = f.svc.SweepMissedAppointments(context.Background())
	require.NoError(t, err)
	require.Zero(t, result.Attempted)

	got, err = f.appts.GetAppointmentByID(elapsed.ID)
	require.NoError(t, err)
	require.Equal(t, appointment.StatusMissed, got.Status)
}

func TestSweepCreatesNoNotifications(t *testing.T) {
	f := newFixture(t)
	providerID := f.addProvider("Dr. Ada Osei")
	f.addAppointment(providerID, appointment.StatusConfirmed, testNow.Add(-2*time.Hour))

	_, err := f.svc.SweepMissedAppointments(context.Background())
	require.NoError(t, err)
	require.Zero(t, f.notifs.Count())
}

func TestSweepNeverOverwritesConcurrentCancel(t *testing.T) {
	f := newFixture(t)
	providerID := f.addProvider("Dr. Ada Osei")
	contested := f.addAppointment(providerID, appointment.StatusConfirmed, testNow.Add(-time.Hour))

	// The wrapper cancels the appointment after the sweep fetched it,
	// simulating an external cancel landing between fetch and write.
	repo := &cancelAfterFetchRepo{MemoryRepository: f.appts, cancelID: contested.ID}
	svc := NewService(repo, f.notifs, redisclient.InlineLocker{}, FixedClock{T: testNow}, config.Config{
		ReminderLookahead: 24 * time.Hour,
		DispatchWorkers:   1,
	})

	result, err := svc.SweepMissedAppointments(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Attempted)
	require.Equal(t, 1, result.Succeeded)

	got, err := f.appts.GetAppointmentByID(contested.ID)
	require.NoError(t, err)
	require.Equal(t, appointment.StatusCancelled, got.Status)
}

// Test doubles

type flakyNotificationRepo struct {
	*notification.MemoryRepository
	failFor uuid.UUID
}

func (r *flakyNotificationRepo) Create(ctx context.Context, n notification.Notification) (*notification.Notification, error) {
	if n.RelatedEntityID == r.failFor {
		return nil, errors.New("store write failed")
	}
	return r.MemoryRepository.Create(ctx, n)
}

type busyLocker struct{}

func (busyLocker) WithLock(context.Context, string, func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

// staleWindowRepo injects an extra, wrongly-statused candidate into window
// results, as if the query raced an external status change.
type staleWindowRepo struct {
	*appointment.MemoryRepository
	extra appointment.Appointment
}

func (r *staleWindowRepo) FindByWindow(ctx context.Context, status appointment.Status, from, to time.Time) ([]appointment.Appointment, error) {
	list, err := r.MemoryRepository.FindByWindow(ctx, status, from, to)
	if err != nil {
		return nil, err
	}
	return append(list, r.extra), nil
}

// cancelAfterFetchRepo flips one appointment to cancelled right after a
// FindPast fetch returns it.
type cancelAfterFetchRepo struct {
	*appointment.MemoryRepository
	cancelID uuid.UUID
}

func (r *cancelAfterFetchRepo) FindPast(ctx context.Context, status appointment.Status, before time.Time) ([]appointment.Appointment, error) {
	list, err := r.MemoryRepository.FindPast(ctx, status, before)
	if err != nil {
		return nil, err
	}
	_, err = r.MemoryRepository.CompareAndSetStatus(ctx, r.cancelID, appointment.StatusConfirmed, appointment.StatusCancelled)
	if err != nil {
		return nil, err
	}
	return list, nil
}
