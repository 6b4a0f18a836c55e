package scheduling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/andeshealth/clinic-scheduling/internal/redis"
	"github.com/andeshealth/clinic-scheduling/internal/timeutil"
)

// fakeRepo is an in-memory Repository with the same overlap semantics as the
// SQL implementation. It is safe for concurrent use so the contention tests
// can run real goroutines against it.
type fakeRepo struct {
	mu sync.Mutex

	patients       map[uuid.UUID]Patient
	providers      map[uuid.UUID]Provider
	attentionTypes map[uuid.UUID]AttentionType
	schedules      map[uuid.UUID]WeeklySchedule
	exceptions     map[uuid.UUID]AvailabilityException
	appointments   map[uuid.UUID]Appointment
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		patients:       map[uuid.UUID]Patient{},
		providers:      map[uuid.UUID]Provider{},
		attentionTypes: map[uuid.UUID]AttentionType{},
		schedules:      map[uuid.UUID]WeeklySchedule{},
		exceptions:     map[uuid.UUID]AvailabilityException{},
		appointments:   map[uuid.UUID]Appointment{},
	}
}

func (f *fakeRepo) addPatient() uuid.UUID {
	id := uuid.New()
	f.patients[id] = Patient{ID: id, Name: "patient " + id.String()[:8]}
	return id
}

func (f *fakeRepo) addProvider() uuid.UUID {
	id := uuid.New()
	f.providers[id] = Provider{ID: id, Name: "provider " + id.String()[:8]}
	return id
}

func (f *fakeRepo) addAttentionType(duration, buffer int) uuid.UUID {
	id := uuid.New()
	f.attentionTypes[id] = AttentionType{
		ID:              id,
		Name:            fmt.Sprintf("type %d/%d %s", duration, buffer, id.String()[:8]),
		DurationMinutes: duration,
		BufferMinutes:   buffer,
	}
	return id
}

func (f *fakeRepo) addSchedule(providerID uuid.UUID, weekday time.Weekday, start, end string) uuid.UUID {
	st, _ := timeutil.ParseTimeOfDay(start)
	en, _ := timeutil.ParseTimeOfDay(end)
	id := uuid.New()
	f.schedules[id] = WeeklySchedule{
		ID: id, ProviderID: providerID, Weekday: weekday, StartTime: st, EndTime: en,
	}
	return id
}

func (f *fakeRepo) InTx(ctx context.Context, fn func(Repository) error) error {
	return fn(f)
}

func (f *fakeRepo) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (f *fakeRepo) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return &p, nil
}

func (f *fakeRepo) GetAttentionTypeByID(ctx context.Context, id uuid.UUID) (*AttentionType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.attentionTypes[id]
	if !ok {
		return nil, ErrAttentionTypeNotFound
	}
	return &at, nil
}

func (f *fakeRepo) ListAttentionTypes(ctx context.Context) ([]AttentionType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []AttentionType{}
	for _, at := range f.attentionTypes {
		out = append(out, at)
	}
	return out, nil
}

func (f *fakeRepo) CreateAttentionType(ctx context.Context, at AttentionType) (*AttentionType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.attentionTypes {
		if existing.Name == at.Name {
			return nil, ErrDuplicateAttentionType
		}
	}
	f.attentionTypes[at.ID] = at
	return &at, nil
}

func (f *fakeRepo) UpdateAttentionType(ctx context.Context, at AttentionType) (*AttentionType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.attentionTypes[at.ID]; !ok {
		return nil, ErrAttentionTypeNotFound
	}
	f.attentionTypes[at.ID] = at
	return &at, nil
}

func (f *fakeRepo) DeleteAttentionType(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.attentionTypes[id]; !ok {
		return ErrAttentionTypeNotFound
	}
	delete(f.attentionTypes, id)
	return nil
}

func (f *fakeRepo) GetWeeklyScheduleByID(ctx context.Context, id uuid.UUID) (*WeeklySchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ws, ok := f.schedules[id]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	return &ws, nil
}

func (f *fakeRepo) ListWeeklySchedules(ctx context.Context, providerID uuid.UUID, weekday time.Weekday) ([]WeeklySchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []WeeklySchedule{}
	for _, ws := range f.schedules {
		if ws.ProviderID == providerID && ws.Weekday == weekday {
			out = append(out, ws)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListProviderSchedules(ctx context.Context, providerID *uuid.UUID) ([]WeeklySchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []WeeklySchedule{}
	for _, ws := range f.schedules {
		if providerID == nil || ws.ProviderID == *providerID {
			out = append(out, ws)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindOverlappingSchedule(ctx context.Context, providerID uuid.UUID, weekday time.Weekday, start, end timeutil.TimeOfDay, excludeID *uuid.UUID) (*WeeklySchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ws := range f.schedules {
		if ws.ProviderID != providerID || ws.Weekday != weekday {
			continue
		}
		if excludeID != nil && ws.ID == *excludeID {
			continue
		}
		if start.Minutes() < ws.EndTime.Minutes() && ws.StartTime.Minutes() < end.Minutes() {
			found := ws
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) CreateWeeklySchedule(ctx context.Context, ws WeeklySchedule) (*WeeklySchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schedules[ws.ID] = ws
	return &ws, nil
}

func (f *fakeRepo) UpdateWeeklySchedule(ctx context.Context, ws WeeklySchedule) (*WeeklySchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.schedules[ws.ID]; !ok {
		return nil, ErrScheduleNotFound
	}
	f.schedules[ws.ID] = ws
	return &ws, nil
}

func (f *fakeRepo) DeleteWeeklySchedule(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.schedules[id]; !ok {
		return ErrScheduleNotFound
	}
	delete(f.schedules, id)
	return nil
}

func (f *fakeRepo) ListExceptions(ctx context.Context, providerID uuid.UUID, date string) ([]AvailabilityException, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []AvailabilityException{}
	for _, ex := range f.exceptions {
		if ex.ProviderID == providerID && ex.Date.Format(timeutil.DateLayout) == date {
			out = append(out, ex)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListExceptionsInRange(ctx context.Context, providerID *uuid.UUID, from, to *string) ([]AvailabilityException, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []AvailabilityException{}
	for _, ex := range f.exceptions {
		if providerID != nil && ex.ProviderID != *providerID {
			continue
		}
		d := ex.Date.Format(timeutil.DateLayout)
		if from != nil && d < *from {
			continue
		}
		if to != nil && d > *to {
			continue
		}
		out = append(out, ex)
	}
	return out, nil
}

func (f *fakeRepo) ExceptionExists(ctx context.Context, providerID uuid.UUID, date string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ex := range f.exceptions {
		if ex.ProviderID == providerID && ex.Date.Format(timeutil.DateLayout) == date {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) CreateException(ctx context.Context, ex AvailabilityException) (*AvailabilityException, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exceptions[ex.ID] = ex
	return &ex, nil
}

func (f *fakeRepo) DeleteException(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.exceptions[id]; !ok {
		return ErrExceptionNotFound
	}
	delete(f.exceptions, id)
	return nil
}

func (f *fakeRepo) ListDayAppointments(ctx context.Context, providerID uuid.UUID, dayStart, dayEnd time.Time, excludeID *uuid.UUID) ([]Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Appointment{}
	for _, a := range f.appointments {
		if a.ProviderID != providerID || a.Status == StatusCancelled {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if a.StartTime.Before(dayStart) || !a.StartTime.Before(dayEnd) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeRepo) FindConflictingAppointment(ctx context.Context, providerID, patientID uuid.UUID, windowStart, windowEnd time.Time, excludeID *uuid.UUID) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.appointments {
		if a.Status == StatusCancelled {
			continue
		}
		if a.ProviderID != providerID && a.PatientID != patientID {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		occStart, occEnd := a.OccupancyWindow()
		if timeutil.Overlaps(windowStart, windowEnd, occStart, occEnd) {
			found := a
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) CreateAppointment(ctx context.Context, appt Appointment) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appointments[appt.ID] = appt
	return &appt, nil
}

func (f *fakeRepo) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (f *fakeRepo) UpdateAppointment(ctx context.Context, appt Appointment) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.appointments[appt.ID]; !ok {
		return nil, ErrAppointmentNotFound
	}
	f.appointments[appt.ID] = appt
	return &appt, nil
}

func (f *fakeRepo) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	f.appointments[id] = a
	return &a, nil
}

func (f *fakeRepo) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.appointments[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(f.appointments, id)
	return nil
}

func (f *fakeRepo) ListAppointments(ctx context.Context, filter AppointmentFilter) ([]Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Appointment{}
	for _, a := range f.appointments {
		if filter.PatientID != nil && a.PatientID != *filter.PatientID {
			continue
		}
		if filter.ProviderID != nil && a.ProviderID != *filter.ProviderID {
			continue
		}
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		if filter.From != nil && a.StartTime.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !a.StartTime.Before(*filter.To) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// memLocker mirrors the Redis locker's semantics with a process-local map:
// the provider-day and patient-day keys are taken all-or-nothing, and a
// held key fails fast instead of blocking.
type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker() *memLocker {
	return &memLocker{held: map[string]bool{}}
}

func (l *memLocker) WithBookingLocks(ctx context.Context, providerID, patientID uuid.UUID, date string, fn func(ctx context.Context) error) error {
	keys := []string{
		"provider:" + providerID.String() + ":" + date,
		"patient:" + patientID.String() + ":" + date,
	}

	l.mu.Lock()
	for _, k := range keys {
		if l.held[k] {
			l.mu.Unlock()
			return redisclient.ErrLockNotAcquired
		}
	}
	for _, k := range keys {
		l.held[k] = true
	}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		for _, k := range keys {
			delete(l.held, k)
		}
		l.mu.Unlock()
	}()

	return fn(ctx)
}
