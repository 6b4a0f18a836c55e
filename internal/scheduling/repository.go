package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/andeshealth/clinic-scheduling/internal/timeutil"
)

var (
	ErrPatientNotFound       = errors.New("patient not found")
	ErrProviderNotFound      = errors.New("provider not found")
	ErrAttentionTypeNotFound = errors.New("attention type not found")
	ErrAppointmentNotFound   = errors.New("appointment not found")
	ErrScheduleNotFound      = errors.New("weekly schedule not found")
	ErrExceptionNotFound     = errors.New("availability exception not found")

	ErrDuplicateSchedule      = errors.New("weekly schedule already exists for that provider, weekday and range")
	ErrDuplicateException     = errors.New("availability exception already exists for that provider and date")
	ErrDuplicateAttentionType = errors.New("attention type name already in use")
)

// AppointmentFilter narrows ListAppointments. Nil fields are ignored.
type AppointmentFilter struct {
	PatientID  *uuid.UUID
	ProviderID *uuid.UUID
	Status     *AppointmentStatus
	From       *time.Time
	To         *time.Time
}

// Repository contains all DB interactions needed by the service.
// InTx runs fn against a transaction-scoped repository; every write path of
// the engine goes through it.
type Repository interface {
	InTx(ctx context.Context, fn func(Repository) error) error

	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)

	GetAttentionTypeByID(ctx context.Context, id uuid.UUID) (*AttentionType, error)
	ListAttentionTypes(ctx context.Context) ([]AttentionType, error)
	CreateAttentionType(ctx context.Context, at AttentionType) (*AttentionType, error)
	UpdateAttentionType(ctx context.Context, at AttentionType) (*AttentionType, error)
	DeleteAttentionType(ctx context.Context, id uuid.UUID) error

	GetWeeklyScheduleByID(ctx context.Context, id uuid.UUID) (*WeeklySchedule, error)
	ListWeeklySchedules(ctx context.Context, providerID uuid.UUID, weekday time.Weekday) ([]WeeklySchedule, error)
	ListProviderSchedules(ctx context.Context, providerID *uuid.UUID) ([]WeeklySchedule, error)
	// FindOverlappingSchedule returns nil when no existing range for the same
	// provider+weekday intersects [start, end).
	FindOverlappingSchedule(ctx context.Context, providerID uuid.UUID, weekday time.Weekday, start, end timeutil.TimeOfDay, excludeID *uuid.UUID) (*WeeklySchedule, error)
	CreateWeeklySchedule(ctx context.Context, ws WeeklySchedule) (*WeeklySchedule, error)
	UpdateWeeklySchedule(ctx context.Context, ws WeeklySchedule) (*WeeklySchedule, error)
	DeleteWeeklySchedule(ctx context.Context, id uuid.UUID) error

	ListExceptions(ctx context.Context, providerID uuid.UUID, date string) ([]AvailabilityException, error)
	ListExceptionsInRange(ctx context.Context, providerID *uuid.UUID, from, to *string) ([]AvailabilityException, error)
	ExceptionExists(ctx context.Context, providerID uuid.UUID, date string) (bool, error)
	CreateException(ctx context.Context, ex AvailabilityException) (*AvailabilityException, error)
	DeleteException(ctx context.Context, id uuid.UUID) error

	// ListDayAppointments returns non-cancelled appointments whose start falls
	// in [dayStart, dayEnd), optionally omitting one appointment id.
	ListDayAppointments(ctx context.Context, providerID uuid.UUID, dayStart, dayEnd time.Time, excludeID *uuid.UUID) ([]Appointment, error)
	// FindConflictingAppointment returns one non-cancelled appointment for the
	// provider or the patient whose occupancy window intersects
	// [windowStart, windowEnd), or nil when the window is free.
	FindConflictingAppointment(ctx context.Context, providerID, patientID uuid.UUID, windowStart, windowEnd time.Time, excludeID *uuid.UUID) (*Appointment, error)
	CreateAppointment(ctx context.Context, appt Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateAppointment(ctx context.Context, appt Appointment) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error)
}
