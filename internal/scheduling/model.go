package scheduling

import (
	"time"

	"github.com/google/uuid"

	"github.com/andeshealth/clinic-scheduling/internal/timeutil"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Terminal statuses admit no further transitions.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Provider struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AttentionType maps a service type to its reservable duration and the dead
// turnaround time appended after it before the next slot may start.
type AttentionType struct {
	ID              uuid.UUID
	Name            string
	DurationMinutes int
	BufferMinutes   int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// WeeklySchedule is one recurring working window for a provider.
// Weekday follows time.Weekday: 0=Sunday..6=Saturday.
type WeeklySchedule struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	Weekday    time.Weekday
	StartTime  timeutil.TimeOfDay
	EndTime    timeutil.TimeOfDay
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AvailabilityException removes availability for part or all of one date.
// When IsFullDay is set the block times are ignored.
type AvailabilityException struct {
	ID          uuid.UUID
	ProviderID  uuid.UUID
	Date        time.Time
	IsFullDay   bool
	BlockStart  *timeutil.TimeOfDay
	BlockEnd    *timeutil.TimeOfDay
	Description *string
	CreatedAt   time.Time
}

// Appointment snapshots duration and buffer from its attention type at
// creation time, so later catalog edits never shift historical occupancy.
type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	ProviderID      uuid.UUID
	AttentionTypeID uuid.UUID
	StartTime       time.Time
	DurationMinutes int
	BufferMinutes   int
	Status          AppointmentStatus
	Notes           *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OccupancyWindow is the half-open interval during which the provider is
// unavailable because of this appointment: [start, start+duration+buffer).
func (a Appointment) OccupancyWindow() (start, end time.Time) {
	start = a.StartTime
	end = start.Add(time.Duration(a.DurationMinutes+a.BufferMinutes) * time.Minute)
	return start, end
}

// Slot is a bookable [start, start+duration) window offered to a client.
type Slot struct {
	Start time.Time
	End   time.Time
}
