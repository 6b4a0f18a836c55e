package scheduling

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/andeshealth/clinic-scheduling/internal/timeutil"
)

type window struct {
	start time.Time
	end   time.Time
}

// ComputeAvailableSlots derives the bookable slots for one provider on one
// calendar date, for the duration and buffer of the given attention type.
// date is a YYYY-MM-DD string interpreted in the clinic's local zone.
// excludeID omits one appointment from occupancy, used when re-validating an
// in-flight update of an existing appointment.
//
// A provider with no weekly schedule for that weekday yields an empty list,
// not an error. So does a full-day availability exception.
func (s *Service) ComputeAvailableSlots(ctx context.Context, providerID uuid.UUID, date string, attentionTypeID uuid.UUID, excludeID *uuid.UUID) ([]Slot, error) {
	day, err := timeutil.ParseDate(date, s.zone)
	if err != nil {
		return nil, invalidf("invalid date %q, expected YYYY-MM-DD", date)
	}

	at, err := s.repo.GetAttentionTypeByID(ctx, attentionTypeID)
	if err != nil {
		return nil, err
	}

	schedules, err := s.repo.ListWeeklySchedules(ctx, providerID, day.Weekday())
	if err != nil {
		return nil, err
	}
	if len(schedules) == 0 {
		return []Slot{}, nil
	}

	dayStart, dayEnd := timeutil.DayBounds(day)
	booked, err := s.repo.ListDayAppointments(ctx, providerID, dayStart.UTC(), dayEnd.UTC(), excludeID)
	if err != nil {
		return nil, err
	}

	exceptions, err := s.repo.ListExceptions(ctx, providerID, date)
	if err != nil {
		return nil, err
	}

	return buildDaySlots(day, schedules, exceptions, booked, at.DurationMinutes, at.BufferMinutes, s.now()), nil
}

// buildDaySlots is the pure slot walk. Candidate slots start at each
// schedule's opening time and advance in fixed steps of duration+buffer;
// sub-step offsets are never searched, so slots stay on a clean grid even if
// that leaves an unbookable gap shorter than a full step. A candidate
// survives while its full occupancy window fits inside the schedule and
// clears the three filters: already (even partially) elapsed, exception
// windows, and existing occupancy windows.
func buildDaySlots(day time.Time, schedules []WeeklySchedule, exceptions []AvailabilityException, booked []Appointment, durationMinutes, bufferMinutes int, now time.Time) []Slot {
	var blocked []window
	for _, ex := range exceptions {
		if ex.IsFullDay {
			return []Slot{}
		}
		if ex.BlockStart == nil || ex.BlockEnd == nil {
			continue
		}
		blocked = append(blocked, window{
			start: timeutil.At(day, *ex.BlockStart),
			end:   timeutil.At(day, *ex.BlockEnd),
		})
	}

	occupied := make([]window, 0, len(booked))
	for _, appt := range booked {
		start, end := appt.OccupancyWindow()
		occupied = append(occupied, window{start: start, end: end})
	}

	duration := time.Duration(durationMinutes) * time.Minute
	step := time.Duration(durationMinutes+bufferMinutes) * time.Minute

	slots := []Slot{}
	for _, ws := range schedules {
		open := timeutil.At(day, ws.StartTime)
		closing := timeutil.At(day, ws.EndTime)

		for cur := open; !cur.Add(step).After(closing); cur = cur.Add(step) {
			blockEnd := cur.Add(step)

			if cur.Before(now) {
				continue
			}
			if intersectsAny(cur, blockEnd, blocked) {
				continue
			}
			if intersectsAny(cur, blockEnd, occupied) {
				continue
			}

			slots = append(slots, Slot{
				Start: cur.UTC(),
				End:   cur.Add(duration).UTC(),
			})
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		return slots[i].Start.Before(slots[j].Start)
	})

	return slots
}

func intersectsAny(start, end time.Time, windows []window) bool {
	for _, w := range windows {
		if timeutil.Overlaps(start, end, w.start, w.end) {
			return true
		}
	}
	return false
}
