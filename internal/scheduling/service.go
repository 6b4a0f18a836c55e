package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/andeshealth/clinic-scheduling/internal/redis"
	"github.com/andeshealth/clinic-scheduling/internal/timeutil"
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	zone   *time.Location
	log    zerolog.Logger

	// now is swapped in tests to pin the clock.
	now func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, zone *time.Location, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		zone:   zone,
		log:    log,
		now:    time.Now,
	}
}

// BookAppointment atomically decides whether the requested slot may be booked.
// The provider-day and patient-day locks are acquired first, then a single
// transaction verifies the referenced entities and runs the authoritative
// overlap check before inserting. Two concurrent requests that share either
// party can never both commit: the loser either fails lock acquisition
// (retryable) or sees the winner's row inside its own transaction.
func (s *Service) BookAppointment(ctx context.Context, patientID, providerID, attentionTypeID uuid.UUID, start time.Time, notes *string) (*Appointment, error) {
	start = start.Truncate(time.Minute)
	date := start.In(s.zone).Format(timeutil.DateLayout)

	var created *Appointment

	err := s.locker.WithBookingLocks(ctx, providerID, patientID, date, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(tx Repository) error {
			at, err := s.checkBookingEntities(lockCtx, tx, patientID, providerID, attentionTypeID)
			if err != nil {
				return err
			}

			requestedEnd := start.Add(time.Duration(at.DurationMinutes) * time.Minute)
			if err := s.checkNoConflict(lockCtx, tx, providerID, patientID, start, requestedEnd, nil); err != nil {
				return err
			}

			appt, err := tx.CreateAppointment(lockCtx, Appointment{
				ID:              uuid.New(),
				PatientID:       patientID,
				ProviderID:      providerID,
				AttentionTypeID: attentionTypeID,
				StartTime:       start,
				DurationMinutes: at.DurationMinutes,
				BufferMinutes:   at.BufferMinutes,
				Status:          StatusPending,
				Notes:           notes,
			})
			if err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}

			created = appt
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingContended
		}
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("provider_id", providerID.String()).
		Str("patient_id", patientID.String()).
		Time("start", created.StartTime).
		Msg("appointment booked")

	return created, nil
}

// AppointmentUpdate carries the fields a PATCH may change. Nil fields keep
// their current value.
type AppointmentUpdate struct {
	PatientID       *uuid.UUID
	ProviderID      *uuid.UUID
	AttentionTypeID *uuid.UUID
	StartTime       *time.Time
	Notes           *string
}

// UpdateAppointment applies the patch. Whenever it changes start time,
// attention type, provider or patient, the booking re-validation runs with
// the edited appointment excluded so it cannot conflict with itself.
func (s *Service) UpdateAppointment(ctx context.Context, id uuid.UUID, upd AppointmentUpdate) (*Appointment, error) {
	existing, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	target := *existing
	if upd.PatientID != nil {
		target.PatientID = *upd.PatientID
	}
	if upd.ProviderID != nil {
		target.ProviderID = *upd.ProviderID
	}
	if upd.AttentionTypeID != nil {
		target.AttentionTypeID = *upd.AttentionTypeID
	}
	if upd.StartTime != nil {
		target.StartTime = upd.StartTime.Truncate(time.Minute)
	}
	if upd.Notes != nil {
		target.Notes = upd.Notes
	}

	revalidate := upd.StartTime != nil || upd.AttentionTypeID != nil || upd.ProviderID != nil || upd.PatientID != nil

	var updated *Appointment
	apply := func(txCtx context.Context, tx Repository) error {
		at, err := s.checkBookingEntities(txCtx, tx, target.PatientID, target.ProviderID, target.AttentionTypeID)
		if err != nil {
			return err
		}

		if upd.AttentionTypeID != nil {
			// Re-snapshot duration and buffer for the new service type.
			target.DurationMinutes = at.DurationMinutes
			target.BufferMinutes = at.BufferMinutes
		}

		if revalidate {
			requestedEnd := target.StartTime.Add(time.Duration(target.DurationMinutes) * time.Minute)
			excludeID := id
			if err := s.checkNoConflict(txCtx, tx, target.ProviderID, target.PatientID, target.StartTime, requestedEnd, &excludeID); err != nil {
				return err
			}
		}

		updated, err = tx.UpdateAppointment(txCtx, target)
		if err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		return nil
	}

	if revalidate {
		date := target.StartTime.In(s.zone).Format(timeutil.DateLayout)
		err = s.locker.WithBookingLocks(ctx, target.ProviderID, target.PatientID, date, func(lockCtx context.Context) error {
			return s.repo.InTx(lockCtx, func(tx Repository) error {
				return apply(lockCtx, tx)
			})
		})
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingContended
		}
	} else {
		err = s.repo.InTx(ctx, func(tx Repository) error {
			return apply(ctx, tx)
		})
	}
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", id.String()).
		Bool("revalidated", revalidate).
		Msg("appointment updated")

	return updated, nil
}

// SetAppointmentStatus performs the simple guarded transitions
// (confirm, cancel, complete). Cancelled and completed are terminal;
// cancellation keeps the row for the audit trail.
func (s *Service) SetAppointmentStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	if !to.Valid() {
		return nil, invalidf("unknown status %q", to)
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == to {
		return appt, nil
	}
	if appt.Status.Terminal() {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Status changed underneath us between read and guarded update.
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.log.Info().
		Str("appointment_id", id.String()).
		Str("status", string(to)).
		Msg("appointment status changed")

	return updated, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	return s.repo.ListAppointments(ctx, f)
}

func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteAppointment(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("appointment_id", id.String()).Msg("appointment deleted")
	return nil
}

// checkBookingEntities verifies patient, provider and attention type
// independently so every missing reference is reported in one error.
func (s *Service) checkBookingEntities(ctx context.Context, tx Repository, patientID, providerID, attentionTypeID uuid.UUID) (*AttentionType, error) {
	var missing []string

	if _, err := tx.GetPatientByID(ctx, patientID); err != nil {
		if !errors.Is(err, ErrPatientNotFound) {
			return nil, fmt.Errorf("load patient: %w", err)
		}
		missing = append(missing, "patient")
	}

	if _, err := tx.GetProviderByID(ctx, providerID); err != nil {
		if !errors.Is(err, ErrProviderNotFound) {
			return nil, fmt.Errorf("load provider: %w", err)
		}
		missing = append(missing, "provider")
	}

	at, err := tx.GetAttentionTypeByID(ctx, attentionTypeID)
	if err != nil {
		if !errors.Is(err, ErrAttentionTypeNotFound) {
			return nil, fmt.Errorf("load attention type: %w", err)
		}
		missing = append(missing, "attention type")
	}

	if len(missing) > 0 {
		return nil, &MissingEntitiesError{Missing: missing}
	}
	return at, nil
}

func (s *Service) checkNoConflict(ctx context.Context, tx Repository, providerID, patientID uuid.UUID, windowStart, windowEnd time.Time, excludeID *uuid.UUID) error {
	conflict, err := tx.FindConflictingAppointment(ctx, providerID, patientID, windowStart, windowEnd, excludeID)
	if err != nil {
		return fmt.Errorf("check conflicting appointment: %w", err)
	}
	if conflict == nil {
		return nil
	}
	if conflict.ProviderID == providerID {
		return ErrProviderConflict
	}
	return ErrPatientConflict
}
