package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/andeshealth/clinic-scheduling/internal/timeutil"
)

// querier is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock pools.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB additionally opens transactions.
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	db DB
	q  querier
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db, q: db}
}

// InTx runs fn against a repository bound to a single transaction. The
// transaction is rolled back on any error so no partial writes are
// observable. Calling InTx on an already transaction-bound repository
// reuses the open transaction.
func (r *PgRepository) InTx(ctx context.Context, fn func(Repository) error) error {
	if r.db == nil {
		return fn(r)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&PgRepository{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Scan helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Specialty,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanAttentionType(row pgx.Row) (*AttentionType, error) {
	var at AttentionType

	err := row.Scan(
		&at.ID,
		&at.Name,
		&at.DurationMinutes,
		&at.BufferMinutes,
		&at.CreatedAt,
		&at.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttentionTypeNotFound
		}
		return nil, err
	}

	return &at, nil
}

func scanSchedule(row pgx.Row) (*WeeklySchedule, error) {
	var (
		ws       WeeklySchedule
		weekday  int
		startRaw string
		endRaw   string
	)

	err := row.Scan(
		&ws.ID,
		&ws.ProviderID,
		&weekday,
		&startRaw,
		&endRaw,
		&ws.CreatedAt,
		&ws.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}

	ws.Weekday = time.Weekday(weekday)
	if ws.StartTime, err = timeutil.ParseTimeOfDay(startRaw); err != nil {
		return nil, fmt.Errorf("schedule %s start_time: %w", ws.ID, err)
	}
	if ws.EndTime, err = timeutil.ParseTimeOfDay(endRaw); err != nil {
		return nil, fmt.Errorf("schedule %s end_time: %w", ws.ID, err)
	}

	return &ws, nil
}

func scanException(row pgx.Row) (*AvailabilityException, error) {
	var (
		ex       AvailabilityException
		startRaw *string
		endRaw   *string
	)

	err := row.Scan(
		&ex.ID,
		&ex.ProviderID,
		&ex.Date,
		&ex.IsFullDay,
		&startRaw,
		&endRaw,
		&ex.Description,
		&ex.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExceptionNotFound
		}
		return nil, err
	}

	if startRaw != nil {
		tod, err := timeutil.ParseTimeOfDay(*startRaw)
		if err != nil {
			return nil, fmt.Errorf("exception %s block_start: %w", ex.ID, err)
		}
		ex.BlockStart = &tod
	}
	if endRaw != nil {
		tod, err := timeutil.ParseTimeOfDay(*endRaw)
		if err != nil {
			return nil, fmt.Errorf("exception %s block_end: %w", ex.ID, err)
		}
		ex.BlockEnd = &tod
	}

	return &ex, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProviderID,
		&a.AttentionTypeID,
		&a.StartTime,
		&a.DurationMinutes,
		&a.BufferMinutes,
		&a.Status,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

// Patients and providers (existence lookups against the CRUD layer's tables)

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

// Attention types

func (r *PgRepository) GetAttentionTypeByID(ctx context.Context, id uuid.UUID) (*AttentionType, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, name, duration_minutes, buffer_minutes, created_at, updated_at
		FROM attention_types
		WHERE id = $1
	`, id)
	return scanAttentionType(row)
}

func (r *PgRepository) ListAttentionTypes(ctx context.Context) ([]AttentionType, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, name, duration_minutes, buffer_minutes, created_at, updated_at
		FROM attention_types
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AttentionType
	for rows.Next() {
		at, err := scanAttentionType(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *at)
	}
	return result, rows.Err()
}

func (r *PgRepository) CreateAttentionType(ctx context.Context, at AttentionType) (*AttentionType, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO attention_types (id, name, duration_minutes, buffer_minutes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id, name, duration_minutes, buffer_minutes, created_at, updated_at
	`, at.ID, at.Name, at.DurationMinutes, at.BufferMinutes)

	created, err := scanAttentionType(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateAttentionType
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateAttentionType(ctx context.Context, at AttentionType) (*AttentionType, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE attention_types
		SET name = $2,
		    duration_minutes = $3,
		    buffer_minutes = $4,
		    updated_at = now()
		WHERE id = $1
		RETURNING id, name, duration_minutes, buffer_minutes, created_at, updated_at
	`, at.ID, at.Name, at.DurationMinutes, at.BufferMinutes)

	updated, err := scanAttentionType(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateAttentionType
		}
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) DeleteAttentionType(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM attention_types WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAttentionTypeNotFound
	}
	return nil
}

// Weekly schedules

const scheduleColumns = `id, provider_id, weekday, start_time::text, end_time::text, created_at, updated_at`

func (r *PgRepository) GetWeeklyScheduleByID(ctx context.Context, id uuid.UUID) (*WeeklySchedule, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM weekly_schedules
		WHERE id = $1
	`, id)
	return scanSchedule(row)
}

func (r *PgRepository) ListWeeklySchedules(ctx context.Context, providerID uuid.UUID, weekday time.Weekday) ([]WeeklySchedule, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM weekly_schedules
		WHERE provider_id = $1 AND weekday = $2
		ORDER BY start_time
	`, providerID, int(weekday))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSchedules(rows)
}

func (r *PgRepository) ListProviderSchedules(ctx context.Context, providerID *uuid.UUID) ([]WeeklySchedule, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM weekly_schedules
		WHERE ($1::uuid IS NULL OR provider_id = $1)
		ORDER BY weekday, start_time
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSchedules(rows)
}

func collectSchedules(rows pgx.Rows) ([]WeeklySchedule, error) {
	var result []WeeklySchedule
	for rows.Next() {
		ws, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ws)
	}
	return result, rows.Err()
}

func (r *PgRepository) FindOverlappingSchedule(ctx context.Context, providerID uuid.UUID, weekday time.Weekday, start, end timeutil.TimeOfDay, excludeID *uuid.UUID) (*WeeklySchedule, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM weekly_schedules
		WHERE provider_id = $1
		  AND weekday = $2
		  AND start_time < $4::time
		  AND $3::time < end_time
		  AND ($5::uuid IS NULL OR id <> $5)
		LIMIT 1
	`, providerID, int(weekday), start.String(), end.String(), excludeID)

	ws, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, ErrScheduleNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ws, nil
}

func (r *PgRepository) CreateWeeklySchedule(ctx context.Context, ws WeeklySchedule) (*WeeklySchedule, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO weekly_schedules (id, provider_id, weekday, start_time, end_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4::time, $5::time, now(), now())
		RETURNING `+scheduleColumns+`
	`, ws.ID, ws.ProviderID, int(ws.Weekday), ws.StartTime.String(), ws.EndTime.String())

	created, err := scanSchedule(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateSchedule
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateWeeklySchedule(ctx context.Context, ws WeeklySchedule) (*WeeklySchedule, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE weekly_schedules
		SET weekday = $2,
		    start_time = $3::time,
		    end_time = $4::time,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+scheduleColumns+`
	`, ws.ID, int(ws.Weekday), ws.StartTime.String(), ws.EndTime.String())

	updated, err := scanSchedule(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateSchedule
		}
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) DeleteWeeklySchedule(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM weekly_schedules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// Availability exceptions

const exceptionColumns = `id, provider_id, date, is_full_day, block_start::text, block_end::text, description, created_at`

func (r *PgRepository) ListExceptions(ctx context.Context, providerID uuid.UUID, date string) ([]AvailabilityException, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+exceptionColumns+`
		FROM availability_exceptions
		WHERE provider_id = $1 AND date = $2::date
	`, providerID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectExceptions(rows)
}

func (r *PgRepository) ListExceptionsInRange(ctx context.Context, providerID *uuid.UUID, from, to *string) ([]AvailabilityException, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+exceptionColumns+`
		FROM availability_exceptions
		WHERE ($1::uuid IS NULL OR provider_id = $1)
		  AND ($2::date IS NULL OR date >= $2::date)
		  AND ($3::date IS NULL OR date <= $3::date)
		ORDER BY date
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectExceptions(rows)
}

func collectExceptions(rows pgx.Rows) ([]AvailabilityException, error) {
	var result []AvailabilityException
	for rows.Next() {
		ex, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ex)
	}
	return result, rows.Err()
}

func (r *PgRepository) ExceptionExists(ctx context.Context, providerID uuid.UUID, date string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM availability_exceptions
			WHERE provider_id = $1 AND date = $2::date
		)
	`, providerID, date).Scan(&exists)
	return exists, err
}

func (r *PgRepository) CreateException(ctx context.Context, ex AvailabilityException) (*AvailabilityException, error) {
	var blockStart, blockEnd *string
	if ex.BlockStart != nil {
		s := ex.BlockStart.String()
		blockStart = &s
	}
	if ex.BlockEnd != nil {
		s := ex.BlockEnd.String()
		blockEnd = &s
	}

	row := r.q.QueryRow(ctx, `
		INSERT INTO availability_exceptions (id, provider_id, date, is_full_day, block_start, block_end, description, created_at)
		VALUES ($1, $2, $3, $4, $5::time, $6::time, $7, now())
		RETURNING `+exceptionColumns+`
	`, ex.ID, ex.ProviderID, ex.Date, ex.IsFullDay, blockStart, blockEnd, ex.Description)

	created, err := scanException(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateException
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) DeleteException(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM availability_exceptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrExceptionNotFound
	}
	return nil
}

// Appointments

const appointmentColumns = `id, patient_id, provider_id, attention_type_id, start_datetime, duration_minutes, buffer_minutes, status, notes, created_at, updated_at`

func (r *PgRepository) ListDayAppointments(ctx context.Context, providerID uuid.UUID, dayStart, dayEnd time.Time, excludeID *uuid.UUID) ([]Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND start_datetime >= $2
		  AND start_datetime < $3
		  AND status <> 'cancelled'
		  AND ($4::uuid IS NULL OR id <> $4)
		ORDER BY start_datetime
	`, providerID, dayStart, dayEnd, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

// FindConflictingAppointment is the authoritative overlap check used inside
// the booking transaction. Occupancy windows are materialized in SQL from the
// snapshotted duration and buffer so the predicate matches the slot
// generator's exactly.
func (r *PgRepository) FindConflictingAppointment(ctx context.Context, providerID, patientID uuid.UUID, windowStart, windowEnd time.Time, excludeID *uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status <> 'cancelled'
		  AND (provider_id = $1 OR patient_id = $2)
		  AND start_datetime < $4
		  AND $3 < start_datetime + make_interval(mins => duration_minutes + buffer_minutes)
		  AND ($5::uuid IS NULL OR id <> $5)
		ORDER BY start_datetime
		LIMIT 1
	`, providerID, patientID, windowStart, windowEnd, excludeID)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, appt Appointment) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, provider_id, attention_type_id, start_datetime, duration_minutes, buffer_minutes, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.PatientID, appt.ProviderID, appt.AttentionTypeID, appt.StartTime,
		appt.DurationMinutes, appt.BufferMinutes, appt.Status, appt.Notes)

	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, appt Appointment) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET patient_id = $2,
		    provider_id = $3,
		    attention_type_id = $4,
		    start_datetime = $5,
		    duration_minutes = $6,
		    buffer_minutes = $7,
		    notes = $8,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.PatientID, appt.ProviderID, appt.AttentionTypeID, appt.StartTime,
		appt.DurationMinutes, appt.BufferMinutes, appt.Notes)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	var status *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}

	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1::uuid IS NULL OR patient_id = $1)
		  AND ($2::uuid IS NULL OR provider_id = $2)
		  AND ($3::text IS NULL OR status = $3)
		  AND ($4::timestamptz IS NULL OR start_datetime >= $4)
		  AND ($5::timestamptz IS NULL OR start_datetime <= $5)
		ORDER BY start_datetime
	`, f.PatientID, f.ProviderID, status, f.From, f.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}
