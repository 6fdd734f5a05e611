package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/careloop/appointment-lifecycle/internal/appointment"
	"github.com/careloop/appointment-lifecycle/internal/batch"
	"github.com/careloop/appointment-lifecycle/internal/config"
	"github.com/careloop/appointment-lifecycle/internal/notification"
	redisclient "github.com/careloop/appointment-lifecycle/internal/redis"
)

// ErrUnexpectedStatus marks a candidate whose stored status does not match
// the query that returned it. It fails that candidate only.
var ErrUnexpectedStatus = errors.New("candidate has unexpected status")

// Service owns the three periodic batch operations of the appointment
// lifecycle: reminder dispatch, review-prompt dispatch, and the missed
// sweep. It holds no state across invocations beyond its collaborators;
// every run derives its windows from the injected clock.
type Service struct {
	appointments  appointment.Repository
	notifications notification.Repository
	locker        redisclient.Locker
	clock         Clock
	cfg           config.Config
}

func NewService(
	appointments appointment.Repository,
	notifications notification.Repository,
	locker redisclient.Locker,
	clock Clock,
	cfg config.Config,
) *Service {
	if clock == nil {
		clock = SystemClock{}
	}
	if cfg.ReminderLookahead <= 0 {
		cfg.ReminderLookahead = 24 * time.Hour
	}
	return &Service{
		appointments:  appointments,
		notifications: notifications,
		locker:        locker,
		clock:         clock,
		cfg:           cfg,
	}
}

// DispatchReminders ensures every confirmed appointment scheduled within the
// lookahead window has exactly one reminder notification. The returned error
// is non-nil only when the candidate query itself fails; per-candidate
// failures are reported inside the result.
func (s *Service) DispatchReminders(ctx context.Context) (batch.Result, error) {
	now := s.clock.Now()

	// Inclusive on both ends: an appointment at exactly now+lookahead is due.
	candidates, err := s.appointments.FindByWindow(ctx, appointment.StatusConfirmed, now, now.Add(s.cfg.ReminderLookahead))
	if err != nil {
		return batch.Result{}, fmt.Errorf("find reminder candidates: %w", err)
	}

	result := batch.Run(ctx, candidates, s.cfg.DispatchWorkers, func(ctx context.Context, appt appointment.Appointment) error {
		if appt.Status != appointment.StatusConfirmed {
			log.Printf("reminder candidate %s has status=%s, want=%s", appt.ID, appt.Status, appointment.StatusConfirmed)
			return fmt.Errorf("%w: %s", ErrUnexpectedStatus, appt.Status)
		}
		return s.ensureNotification(ctx, appt, notification.KindAppointmentReminder, reminderPayload)
	})

	return result, nil
}

// DispatchReviewPrompts ensures every appointment completed on the previous
// calendar day has exactly one review-prompt notification. The day window is
// half-open so a record never matches two consecutive daily runs.
func (s *Service) DispatchReviewPrompts(ctx context.Context) (batch.Result, error) {
	now := s.clock.Now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterdayStart := todayStart.AddDate(0, 0, -1)

	candidates, err := s.appointments.FindByDay(ctx, appointment.StatusCompleted, yesterdayStart, todayStart)
	if err != nil {
		return batch.Result{}, fmt.Errorf("find review-prompt candidates: %w", err)
	}

	result := batch.Run(ctx, candidates, s.cfg.DispatchWorkers, func(ctx context.Context, appt appointment.Appointment) error {
		if appt.Status != appointment.StatusCompleted {
			log.Printf("review-prompt candidate %s has status=%s, want=%s", appt.ID, appt.Status, appointment.StatusCompleted)
			return fmt.Errorf("%w: %s", ErrUnexpectedStatus, appt.Status)
		}
		return s.ensureNotification(ctx, appt, notification.KindReviewPrompt, reviewPayload)
	})

	return result, nil
}

// SweepMissedAppointments transitions every confirmed appointment whose
// scheduled time has elapsed to missed. The write is status-guarded so a
// concurrent cancel or complete is never overwritten; a guard miss counts as
// a success no-op.
func (s *Service) SweepMissedAppointments(ctx context.Context) (batch.Result, error) {
	now := s.clock.Now()

	candidates, err := s.appointments.FindPast(ctx, appointment.StatusConfirmed, now)
	if err != nil {
		return batch.Result{}, fmt.Errorf("find missed candidates: %w", err)
	}

	result := batch.Run(ctx, candidates, s.cfg.DispatchWorkers, func(ctx context.Context, appt appointment.Appointment) error {
		if !appt.ScheduledAt.Before(now) {
			return fmt.Errorf("candidate %s scheduled at %s is not in the past", appt.ID, appt.ScheduledAt)
		}

		applied, err := s.appointments.CompareAndSetStatus(ctx, appt.ID, appointment.StatusConfirmed, appointment.StatusMissed)
		if err != nil {
			return fmt.Errorf("mark appointment missed: %w", err)
		}
		if !applied {
			// The appointment left confirmed between fetch and write.
			log.Printf("sweep skipped appointment %s: status changed concurrently", appt.ID)
		}
		return nil
	})

	return result, nil
}

// payloadFunc renders the title and message for one notification kind.
type payloadFunc func(appt appointment.Appointment, provider *appointment.Provider) (title, message string)

func reminderPayload(appt appointment.Appointment, provider *appointment.Provider) (string, string) {
	return "Upcoming appointment reminder",
		fmt.Sprintf("Your appointment with %s is coming up at %s.", provider.Name, appt.ScheduledAt.Format(time.Kitchen))
}

func reviewPayload(_ appointment.Appointment, provider *appointment.Provider) (string, string) {
	return "How was your appointment?",
		fmt.Sprintf("Your appointment with %s is complete. We would love to hear about your visit.", provider.Name)
}

// ensureNotification creates the notification for (appt, kind) unless one
// already exists. The existence check and the create are two store calls, so
// the pair runs under a per-candidate lock; a lock held elsewhere means an
// overlapping run is already handling this candidate, which is a no-op here.
func (s *Service) ensureNotification(ctx context.Context, appt appointment.Appointment, kind notification.Kind, payload payloadFunc) error {
	key := redisclient.DispatchLockKey(string(kind), appt.ID)

	err := s.locker.WithLock(ctx, key, func(ctx context.Context) error {
		exists, err := s.notifications.ExistsFor(ctx, appt.ID, kind)
		if err != nil {
			return fmt.Errorf("check existing %s: %w", kind, err)
		}
		if exists {
			return nil
		}

		provider, err := s.appointments.GetProviderByID(ctx, appt.ProviderID)
		if err != nil {
			return fmt.Errorf("load provider %s: %w", appt.ProviderID, err)
		}

		title, message := payload(appt, provider)

		_, err = s.notifications.Create(ctx, notification.Notification{
			RecipientID:     appt.PatientID,
			Kind:            kind,
			Title:           title,
			Message:         message,
			RelatedEntityID: appt.ID,
			CreatedAt:       s.clock.Now(),
		})
		if err != nil {
			if errors.Is(err, notification.ErrAlreadyExists) {
				return nil
			}
			return fmt.Errorf("create %s: %w", kind, err)
		}

		return nil
	})

	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		log.Printf("dispatch lock busy for %s, another run owns candidate %s", kind, appt.ID)
		return nil
	}
	return err
}
