package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/andeshealth/clinic-scheduling/internal/timeutil"
)

// Calendar rules and attention type operations. Mutations run in short
// transactions so a concurrent slot computation never reads a half-written
// rule set.

// CreateWeeklySchedule adds a recurring working window. Ranges that overlap
// an existing window for the same provider and weekday are rejected at write
// time, so the slot generator never has to reconcile overlapping rules.
func (s *Service) CreateWeeklySchedule(ctx context.Context, providerID uuid.UUID, weekday int, startTime, endTime string) (*WeeklySchedule, error) {
	ws, err := validateScheduleRange(weekday, startTime, endTime)
	if err != nil {
		return nil, err
	}
	ws.ID = uuid.New()
	ws.ProviderID = providerID

	var created *WeeklySchedule
	err = s.repo.InTx(ctx, func(tx Repository) error {
		if _, err := tx.GetProviderByID(ctx, providerID); err != nil {
			return err
		}

		existing, err := tx.FindOverlappingSchedule(ctx, providerID, ws.Weekday, ws.StartTime, ws.EndTime, nil)
		if err != nil {
			return fmt.Errorf("check schedule overlap: %w", err)
		}
		if existing != nil {
			return ErrScheduleOverlap
		}

		created, err = tx.CreateWeeklySchedule(ctx, *ws)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

type WeeklyScheduleUpdate struct {
	Weekday   *int
	StartTime *string
	EndTime   *string
}

func (s *Service) UpdateWeeklySchedule(ctx context.Context, id uuid.UUID, upd WeeklyScheduleUpdate) (*WeeklySchedule, error) {
	var updated *WeeklySchedule

	err := s.repo.InTx(ctx, func(tx Repository) error {
		existing, err := tx.GetWeeklyScheduleByID(ctx, id)
		if err != nil {
			return err
		}

		weekday := int(existing.Weekday)
		startTime := existing.StartTime.String()
		endTime := existing.EndTime.String()
		if upd.Weekday != nil {
			weekday = *upd.Weekday
		}
		if upd.StartTime != nil {
			startTime = *upd.StartTime
		}
		if upd.EndTime != nil {
			endTime = *upd.EndTime
		}

		ws, err := validateScheduleRange(weekday, startTime, endTime)
		if err != nil {
			return err
		}
		ws.ID = id
		ws.ProviderID = existing.ProviderID

		overlapping, err := tx.FindOverlappingSchedule(ctx, ws.ProviderID, ws.Weekday, ws.StartTime, ws.EndTime, &id)
		if err != nil {
			return fmt.Errorf("check schedule overlap: %w", err)
		}
		if overlapping != nil {
			return ErrScheduleOverlap
		}

		updated, err = tx.UpdateWeeklySchedule(ctx, *ws)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) DeleteWeeklySchedule(ctx context.Context, id uuid.UUID) error {
	return s.repo.InTx(ctx, func(tx Repository) error {
		return tx.DeleteWeeklySchedule(ctx, id)
	})
}

func (s *Service) ListSchedules(ctx context.Context, providerID *uuid.UUID) ([]WeeklySchedule, error) {
	return s.repo.ListProviderSchedules(ctx, providerID)
}

func validateScheduleRange(weekday int, startTime, endTime string) (*WeeklySchedule, error) {
	if weekday < 0 || weekday > 6 {
		return nil, invalidf("weekday must be between 0 (Sunday) and 6 (Saturday), got %d", weekday)
	}
	start, err := timeutil.ParseTimeOfDay(startTime)
	if err != nil {
		return nil, invalidf("invalid start_time %q, expected HH:MM", startTime)
	}
	end, err := timeutil.ParseTimeOfDay(endTime)
	if err != nil {
		return nil, invalidf("invalid end_time %q, expected HH:MM", endTime)
	}
	if !start.Before(end) {
		return nil, invalidf("start_time %s must be before end_time %s", start, end)
	}

	return &WeeklySchedule{
		Weekday:   time.Weekday(weekday),
		StartTime: start,
		EndTime:   end,
	}, nil
}

// CreateException blocks part or all of one date for a provider. Exact
// duplicate (provider, date) pairs are rejected; the unique index in the
// schema backs this check under concurrency.
func (s *Service) CreateException(ctx context.Context, providerID uuid.UUID, date string, isFullDay bool, blockStart, blockEnd *string, description *string) (*AvailabilityException, error) {
	day, err := timeutil.ParseDate(date, s.zone)
	if err != nil {
		return nil, invalidf("invalid date %q, expected YYYY-MM-DD", date)
	}

	ex := AvailabilityException{
		ID:          uuid.New(),
		ProviderID:  providerID,
		Date:        day,
		IsFullDay:   isFullDay,
		Description: description,
	}

	if !isFullDay {
		if blockStart == nil || blockEnd == nil {
			return nil, invalidf("block_start and block_end are required unless is_full_day is set")
		}
		start, err := timeutil.ParseTimeOfDay(*blockStart)
		if err != nil {
			return nil, invalidf("invalid block_start %q, expected HH:MM", *blockStart)
		}
		end, err := timeutil.ParseTimeOfDay(*blockEnd)
		if err != nil {
			return nil, invalidf("invalid block_end %q, expected HH:MM", *blockEnd)
		}
		if !start.Before(end) {
			return nil, invalidf("block_start %s must be before block_end %s", start, end)
		}
		ex.BlockStart = &start
		ex.BlockEnd = &end
	}

	var created *AvailabilityException
	err = s.repo.InTx(ctx, func(tx Repository) error {
		if _, err := tx.GetProviderByID(ctx, providerID); err != nil {
			return err
		}

		exists, err := tx.ExceptionExists(ctx, providerID, date)
		if err != nil {
			return fmt.Errorf("check duplicate exception: %w", err)
		}
		if exists {
			return ErrDuplicateException
		}

		created, err = tx.CreateException(ctx, ex)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) ListExceptions(ctx context.Context, providerID *uuid.UUID, from, to *string) ([]AvailabilityException, error) {
	for _, d := range []*string{from, to} {
		if d == nil {
			continue
		}
		if _, err := timeutil.ParseDate(*d, s.zone); err != nil {
			return nil, invalidf("invalid date %q, expected YYYY-MM-DD", *d)
		}
	}
	return s.repo.ListExceptionsInRange(ctx, providerID, from, to)
}

func (s *Service) DeleteException(ctx context.Context, id uuid.UUID) error {
	return s.repo.InTx(ctx, func(tx Repository) error {
		return tx.DeleteException(ctx, id)
	})
}

// Attention types

func (s *Service) CreateAttentionType(ctx context.Context, name string, durationMinutes, bufferMinutes int) (*AttentionType, error) {
	if err := validateAttentionType(name, durationMinutes, bufferMinutes); err != nil {
		return nil, err
	}
	return s.repo.CreateAttentionType(ctx, AttentionType{
		ID:              uuid.New(),
		Name:            name,
		DurationMinutes: durationMinutes,
		BufferMinutes:   bufferMinutes,
	})
}

type AttentionTypeUpdate struct {
	Name            *string
	DurationMinutes *int
	BufferMinutes   *int
}

func (s *Service) UpdateAttentionType(ctx context.Context, id uuid.UUID, upd AttentionTypeUpdate) (*AttentionType, error) {
	existing, err := s.repo.GetAttentionTypeByID(ctx, id)
	if err != nil {
		return nil, err
	}

	target := *existing
	if upd.Name != nil {
		target.Name = *upd.Name
	}
	if upd.DurationMinutes != nil {
		target.DurationMinutes = *upd.DurationMinutes
	}
	if upd.BufferMinutes != nil {
		target.BufferMinutes = *upd.BufferMinutes
	}

	if err := validateAttentionType(target.Name, target.DurationMinutes, target.BufferMinutes); err != nil {
		return nil, err
	}

	return s.repo.UpdateAttentionType(ctx, target)
}

func (s *Service) GetAttentionType(ctx context.Context, id uuid.UUID) (*AttentionType, error) {
	return s.repo.GetAttentionTypeByID(ctx, id)
}

func (s *Service) ListAttentionTypes(ctx context.Context) ([]AttentionType, error) {
	return s.repo.ListAttentionTypes(ctx)
}

func (s *Service) DeleteAttentionType(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteAttentionType(ctx, id)
}

func validateAttentionType(name string, durationMinutes, bufferMinutes int) error {
	if name == "" {
		return invalidf("name is required")
	}
	if durationMinutes <= 0 {
		return invalidf("duration_minutes must be positive, got %d", durationMinutes)
	}
	if bufferMinutes < 0 {
		return invalidf("buffer_minutes must not be negative, got %d", bufferMinutes)
	}
	return nil
}
