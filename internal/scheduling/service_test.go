package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andeshealth/clinic-scheduling/internal/timeutil"
)

func slotStart(t *testing.T, date, clock string) time.Time {
	t.Helper()
	day, err := timeutil.ParseDate(date, santiago)
	require.NoError(t, err)
	tod, err := timeutil.ParseTimeOfDay(clock)
	require.NoError(t, err)
	return timeutil.At(day, tod).UTC()
}

func TestBookAppointment(t *testing.T) {
	fx := newSlotFixture(t)
	start := slotStart(t, testDate, "09:00")

	appt, err := fx.svc.BookAppointment(context.Background(), fx.patientID, fx.providerID, fx.attentionTypeID, start, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, appt.Status)
	assert.True(t, appt.StartTime.Equal(start))
	// Duration and buffer are frozen at booking time.
	assert.Equal(t, 60, appt.DurationMinutes)
	assert.Equal(t, 30, appt.BufferMinutes)
}

func TestBookAppointmentSecondCallerLoses(t *testing.T) {
	fx := newSlotFixture(t)
	start := slotStart(t, testDate, "09:00")

	_, err := fx.svc.BookAppointment(context.Background(), fx.patientID, fx.providerID, fx.attentionTypeID, start, nil)
	require.NoError(t, err)

	otherPatient := fx.repo.addPatient()
	_, err = fx.svc.BookAppointment(context.Background(), otherPatient, fx.providerID, fx.attentionTypeID, start, nil)
	assert.ErrorIs(t, err, ErrProviderConflict)
}

func TestBookAppointmentPatientDoubleBooked(t *testing.T) {
	fx := newSlotFixture(t)
	start := slotStart(t, testDate, "09:00")

	_, err := fx.svc.BookAppointment(context.Background(), fx.patientID, fx.providerID, fx.attentionTypeID, start, nil)
	require.NoError(t, err)

	// Same patient, different provider, overlapping window.
	otherProvider := fx.repo.addProvider()
	fx.repo.addSchedule(otherProvider, time.Monday, "09:00", "12:00")

	_, err = fx.svc.BookAppointment(context.Background(), fx.patientID, otherProvider, fx.attentionTypeID, start.Add(30*time.Minute), nil)
	assert.ErrorIs(t, err, ErrPatientConflict)
}

func TestBookAppointmentBufferBlocksAdjacentStart(t *testing.T) {
	fx := newSlotFixture(t)

	_, err := fx.svc.BookAppointment(context.Background(), fx.patientID, fx.providerID, fx.attentionTypeID, slotStart(t, testDate, "09:00"), nil)
	require.NoError(t, err)

	// 10:00 is inside the first booking's buffer tail (occupancy runs to
	// 10:30), so it must be rejected even though the visits would not meet.
	otherPatient := fx.repo.addPatient()
	_, err = fx.svc.BookAppointment(context.Background(), otherPatient, fx.providerID, fx.attentionTypeID, slotStart(t, testDate, "10:00"), nil)
	assert.ErrorIs(t, err, ErrProviderConflict)

	// 10:30 clears the occupancy window.
	_, err = fx.svc.BookAppointment(context.Background(), otherPatient, fx.providerID, fx.attentionTypeID, slotStart(t, testDate, "10:30"), nil)
	assert.NoError(t, err)
}

func TestBookAppointmentMissingEntities(t *testing.T) {
	fx := newSlotFixture(t)

	_, err := fx.svc.BookAppointment(context.Background(), uuid.New(), uuid.New(), uuid.New(), slotStart(t, testDate, "09:00"), nil)

	var missing *MissingEntitiesError
	require.ErrorAs(t, err, &missing)
	assert.ElementsMatch(t, []string{"patient", "provider", "attention type"}, missing.Missing)
}

func TestBookAppointmentConcurrentOneWinner(t *testing.T) {
	fx := newSlotFixture(t)
	start := slotStart(t, testDate, "09:00")

	const callers = 8
	patientIDs := make([]uuid.UUID, callers)
	for i := range patientIDs {
		patientIDs[i] = fx.repo.addPatient()
	}

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fx.svc.BookAppointment(context.Background(), patientIDs[i], fx.providerID, fx.attentionTypeID, start, nil)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrBookingContended), errors.Is(err, ErrProviderConflict):
			// both are valid loser outcomes
		default:
			t.Fatalf("unexpected booking error: %v", err)
		}
	}
	assert.Equal(t, 1, winners)

	// The ledger holds exactly the winner's row.
	appts, err := fx.repo.ListAppointments(context.Background(), AppointmentFilter{ProviderID: &fx.providerID})
	require.NoError(t, err)
	assert.Len(t, appts, 1)
}

// slowConflictRepo widens the race window between the conflict check and the
// insert, so two in-flight bookings both pass their checks before either
// commits unless a lock serializes them.
type slowConflictRepo struct {
	*fakeRepo
}

func (r *slowConflictRepo) InTx(ctx context.Context, fn func(Repository) error) error {
	return fn(r)
}

func (r *slowConflictRepo) FindConflictingAppointment(ctx context.Context, providerID, patientID uuid.UUID, windowStart, windowEnd time.Time, excludeID *uuid.UUID) (*Appointment, error) {
	conflict, err := r.fakeRepo.FindConflictingAppointment(ctx, providerID, patientID, windowStart, windowEnd, excludeID)
	time.Sleep(50 * time.Millisecond)
	return conflict, err
}

func TestBookAppointmentSamePatientTwoProvidersConcurrent(t *testing.T) {
	repo := newFakeRepo()
	patientID := repo.addPatient()
	attentionTypeID := repo.addAttentionType(60, 30)
	providerA := repo.addProvider()
	providerB := repo.addProvider()
	repo.addSchedule(providerA, time.Monday, "09:00", "12:00")
	repo.addSchedule(providerB, time.Monday, "09:00", "12:00")

	svc := NewService(&slowConflictRepo{fakeRepo: repo}, newMemLocker(), santiago, zerolog.Nop())
	svc.now = func() time.Time {
		return time.Date(2026, time.February, 1, 12, 0, 0, 0, santiago)
	}

	// One patient races two bookings with different providers into overlapping
	// windows. The provider-day keys differ, so only the patient-day lock can
	// serialize them.
	starts := []time.Time{slotStart(t, testDate, "09:00"), slotStart(t, testDate, "09:30")}
	providers := []uuid.UUID{providerA, providerB}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.BookAppointment(context.Background(), patientID, providers[i], attentionTypeID, starts[i], nil)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrBookingContended), errors.Is(err, ErrPatientConflict):
			// both are valid loser outcomes
		default:
			t.Fatalf("unexpected booking error: %v", err)
		}
	}
	assert.Equal(t, 1, winners)

	appts, err := repo.ListAppointments(context.Background(), AppointmentFilter{PatientID: &patientID})
	require.NoError(t, err)
	assert.Len(t, appts, 1, "the patient must never hold two overlapping appointments")
}

func TestCancelledAppointmentFreesWindowForBooking(t *testing.T) {
	fx := newSlotFixture(t)
	start := slotStart(t, testDate, "09:00")

	first, err := fx.svc.BookAppointment(context.Background(), fx.patientID, fx.providerID, fx.attentionTypeID, start, nil)
	require.NoError(t, err)

	_, err = fx.svc.SetAppointmentStatus(context.Background(), first.ID, StatusCancelled)
	require.NoError(t, err)

	otherPatient := fx.repo.addPatient()
	_, err = fx.svc.BookAppointment(context.Background(), otherPatient, fx.providerID, fx.attentionTypeID, start, nil)
	assert.NoError(t, err)
}

func TestUpdateAppointmentReschedule(t *testing.T) {
	fx := newSlotFixture(t)

	appt, err := fx.svc.BookAppointment(context.Background(), fx.patientID, fx.providerID, fx.attentionTypeID, slotStart(t, testDate, "09:00"), nil)
	require.NoError(t, err)

	newStart := slotStart(t, testDate, "10:30")
	updated, err := fx.svc.UpdateAppointment(context.Background(), appt.ID, AppointmentUpdate{StartTime: &newStart})
	require.NoError(t, err)
	assert.True(t, updated.StartTime.Equal(newStart))
}

func TestUpdateAppointmentRescheduleConflict(t *testing.T) {
	fx := newSlotFixture(t)

	otherPatient := fx.repo.addPatient()
	_, err := fx.svc.BookAppointment(context.Background(), otherPatient, fx.providerID, fx.attentionTypeID, slotStart(t, testDate, "09:00"), nil)
	require.NoError(t, err)

	appt, err := fx.svc.BookAppointment(context.Background(), fx.patientID, fx.providerID, fx.attentionTypeID, slotStart(t, testDate, "10:30"), nil)
	require.NoError(t, err)

	// Moving into the other booking's window must fail.
	newStart := slotStart(t, testDate, "09:30")
	_, err = fx.svc.UpdateAppointment(context.Background(), appt.ID, AppointmentUpdate{StartTime: &newStart})
	assert.ErrorIs(t, err, ErrProviderConflict)
}

func TestUpdateAppointmentMoveWithinOwnWindow(t *testing.T) {
	fx := newSlotFixture(t)

	appt, err := fx.svc.BookAppointment(context.Background(), fx.patientID, fx.providerID, fx.attentionTypeID, slotStart(t, testDate, "09:00"), nil)
	require.NoError(t, err)

	// A shift overlapping only the appointment's own occupancy is allowed:
	// the edited row is excluded from the conflict check.
	newStart := slotStart(t, testDate, "09:30")
	updated, err := fx.svc.UpdateAppointment(context.Background(), appt.ID, AppointmentUpdate{StartTime: &newStart})
	require.NoError(t, err)
	assert.True(t, updated.StartTime.Equal(newStart))
}

func TestUpdateAppointmentAttentionTypeResnapshots(t *testing.T) {
	fx := newSlotFixture(t)

	appt, err := fx.svc.BookAppointment(context.Background(), fx.patientID, fx.providerID, fx.attentionTypeID, slotStart(t, testDate, "09:00"), nil)
	require.NoError(t, err)

	shortType := fx.repo.addAttentionType(30, 15)
	updated, err := fx.svc.UpdateAppointment(context.Background(), appt.ID, AppointmentUpdate{AttentionTypeID: &shortType})
	require.NoError(t, err)

	assert.Equal(t, 30, updated.DurationMinutes)
	assert.Equal(t, 15, updated.BufferMinutes)
}

func TestUpdateAppointmentNotesOnlySkipsRevalidation(t *testing.T) {
	fx := newSlotFixture(t)

	appt, err := fx.svc.BookAppointment(context.Background(), fx.patientID, fx.providerID, fx.attentionTypeID, slotStart(t, testDate, "09:00"), nil)
	require.NoError(t, err)

	notes := "arrive 10 minutes early"
	updated, err := fx.svc.UpdateAppointment(context.Background(), appt.ID, AppointmentUpdate{Notes: &notes})
	require.NoError(t, err)
	require.NotNil(t, updated.Notes)
	assert.Equal(t, notes, *updated.Notes)
	assert.True(t, updated.StartTime.Equal(appt.StartTime))
}

func TestUpdateAppointmentPatientChangeRevalidates(t *testing.T) {
	fx := newSlotFixture(t)

	// fx.patientID occupies 09:00 to 10:30 with the fixture provider.
	_, err := fx.svc.BookAppointment(context.Background(), fx.patientID, fx.providerID, fx.attentionTypeID, slotStart(t, testDate, "09:00"), nil)
	require.NoError(t, err)

	otherProvider := fx.repo.addProvider()
	fx.repo.addSchedule(otherProvider, time.Monday, "09:00", "12:00")
	otherPatient := fx.repo.addPatient()
	appt, err := fx.svc.BookAppointment(context.Background(), otherPatient, otherProvider, fx.attentionTypeID, slotStart(t, testDate, "09:30"), nil)
	require.NoError(t, err)

	// Reassigning the appointment to a patient who already holds an
	// overlapping booking elsewhere must re-run the conflict check.
	_, err = fx.svc.UpdateAppointment(context.Background(), appt.ID, AppointmentUpdate{PatientID: &fx.patientID})
	assert.ErrorIs(t, err, ErrPatientConflict)

	// A free patient can take the appointment over.
	freePatient := fx.repo.addPatient()
	updated, err := fx.svc.UpdateAppointment(context.Background(), appt.ID, AppointmentUpdate{PatientID: &freePatient})
	require.NoError(t, err)
	assert.Equal(t, freePatient, updated.PatientID)
}

func TestSetAppointmentStatusTransitions(t *testing.T) {
	fx := newSlotFixture(t)

	appt, err := fx.svc.BookAppointment(context.Background(), fx.patientID, fx.providerID, fx.attentionTypeID, slotStart(t, testDate, "09:00"), nil)
	require.NoError(t, err)

	confirmed, err := fx.svc.SetAppointmentStatus(context.Background(), appt.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	completed, err := fx.svc.SetAppointmentStatus(context.Background(), appt.ID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)

	// Completed is terminal.
	_, err = fx.svc.SetAppointmentStatus(context.Background(), appt.ID, StatusCancelled)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	// Setting the current status again is a no-op, not an error.
	same, err := fx.svc.SetAppointmentStatus(context.Background(), appt.ID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, same.Status)
}

func TestSetAppointmentStatusValidation(t *testing.T) {
	fx := newSlotFixture(t)

	_, err := fx.svc.SetAppointmentStatus(context.Background(), uuid.New(), AppointmentStatus("archived"))
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = fx.svc.SetAppointmentStatus(context.Background(), uuid.New(), StatusConfirmed)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestDeleteAppointment(t *testing.T) {
	fx := newSlotFixture(t)

	appt, err := fx.svc.BookAppointment(context.Background(), fx.patientID, fx.providerID, fx.attentionTypeID, slotStart(t, testDate, "09:00"), nil)
	require.NoError(t, err)

	require.NoError(t, fx.svc.DeleteAppointment(context.Background(), appt.ID))
	_, err = fx.svc.GetAppointment(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	assert.ErrorIs(t, fx.svc.DeleteAppointment(context.Background(), appt.ID), ErrAppointmentNotFound)
}

func TestListAppointmentsFilter(t *testing.T) {
	fx := newSlotFixture(t)

	first, err := fx.svc.BookAppointment(context.Background(), fx.patientID, fx.providerID, fx.attentionTypeID, slotStart(t, testDate, "09:00"), nil)
	require.NoError(t, err)

	otherPatient := fx.repo.addPatient()
	_, err = fx.svc.BookAppointment(context.Background(), otherPatient, fx.providerID, fx.attentionTypeID, slotStart(t, testDate, "10:30"), nil)
	require.NoError(t, err)

	byPatient, err := fx.svc.ListAppointments(context.Background(), AppointmentFilter{PatientID: &fx.patientID})
	require.NoError(t, err)
	require.Len(t, byPatient, 1)
	assert.Equal(t, first.ID, byPatient[0].ID)

	from := slotStart(t, testDate, "10:00")
	later, err := fx.svc.ListAppointments(context.Background(), AppointmentFilter{ProviderID: &fx.providerID, From: &from})
	require.NoError(t, err)
	assert.Len(t, later, 1)
}
