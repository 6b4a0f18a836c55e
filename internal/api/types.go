package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/andeshealth/clinic-scheduling/internal/scheduling"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type SlotResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func toSlotResponses(slots []scheduling.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotResponse{Start: s.Start, End: s.End})
	}
	return out
}

type CreateAppointmentRequest struct {
	PatientID       string  `json:"patient_id"`
	ProviderID      string  `json:"provider_id"`
	AttentionTypeID string  `json:"attention_type_id"`
	StartDatetime   string  `json:"start_datetime"`
	Notes           *string `json:"notes,omitempty"`
}

type UpdateAppointmentRequest struct {
	PatientID       *string `json:"patient_id,omitempty"`
	ProviderID      *string `json:"provider_id,omitempty"`
	AttentionTypeID *string `json:"attention_type_id,omitempty"`
	StartDatetime   *string `json:"start_datetime,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

type AppointmentStatusRequest struct {
	Status string `json:"status"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	ProviderID      uuid.UUID `json:"provider_id"`
	AttentionTypeID uuid.UUID `json:"attention_type_id"`
	StartDatetime   time.Time `json:"start_datetime"`
	DurationMinutes int       `json:"duration_minutes"`
	BufferMinutes   int       `json:"buffer_minutes"`
	Status          string    `json:"status"`
	Notes           *string   `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		ProviderID:      a.ProviderID,
		AttentionTypeID: a.AttentionTypeID,
		StartDatetime:   a.StartTime.UTC(),
		DurationMinutes: a.DurationMinutes,
		BufferMinutes:   a.BufferMinutes,
		Status:          string(a.Status),
		Notes:           a.Notes,
		CreatedAt:       a.CreatedAt,
	}
}

type CreateScheduleRequest struct {
	ProviderID string `json:"provider_id"`
	Weekday    int    `json:"weekday"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}

type UpdateScheduleRequest struct {
	Weekday   *int    `json:"weekday,omitempty"`
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`
}

type ScheduleResponse struct {
	ID         uuid.UUID `json:"id"`
	ProviderID uuid.UUID `json:"provider_id"`
	Weekday    int       `json:"weekday"`
	StartTime  string    `json:"start_time"`
	EndTime    string    `json:"end_time"`
}

func toScheduleResponse(ws *scheduling.WeeklySchedule) ScheduleResponse {
	return ScheduleResponse{
		ID:         ws.ID,
		ProviderID: ws.ProviderID,
		Weekday:    int(ws.Weekday),
		StartTime:  ws.StartTime.String(),
		EndTime:    ws.EndTime.String(),
	}
}

type CreateExceptionRequest struct {
	ProviderID  string  `json:"provider_id"`
	Date        string  `json:"date"`
	IsFullDay   bool    `json:"is_full_day"`
	BlockStart  *string `json:"block_start,omitempty"`
	BlockEnd    *string `json:"block_end,omitempty"`
	Description *string `json:"description,omitempty"`
}

type ExceptionResponse struct {
	ID          uuid.UUID `json:"id"`
	ProviderID  uuid.UUID `json:"provider_id"`
	Date        string    `json:"date"`
	IsFullDay   bool      `json:"is_full_day"`
	BlockStart  *string   `json:"block_start,omitempty"`
	BlockEnd    *string   `json:"block_end,omitempty"`
	Description *string   `json:"description,omitempty"`
}

func toExceptionResponse(ex *scheduling.AvailabilityException) ExceptionResponse {
	resp := ExceptionResponse{
		ID:          ex.ID,
		ProviderID:  ex.ProviderID,
		Date:        ex.Date.Format("2006-01-02"),
		IsFullDay:   ex.IsFullDay,
		Description: ex.Description,
	}
	if ex.BlockStart != nil {
		s := ex.BlockStart.String()
		resp.BlockStart = &s
	}
	if ex.BlockEnd != nil {
		s := ex.BlockEnd.String()
		resp.BlockEnd = &s
	}
	return resp
}

type CreateAttentionTypeRequest struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	BufferMinutes   int    `json:"buffer_minutes"`
}

type UpdateAttentionTypeRequest struct {
	Name            *string `json:"name,omitempty"`
	DurationMinutes *int    `json:"duration_minutes,omitempty"`
	BufferMinutes   *int    `json:"buffer_minutes,omitempty"`
}

type AttentionTypeResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	BufferMinutes   int       `json:"buffer_minutes"`
}

func toAttentionTypeResponse(at *scheduling.AttentionType) AttentionTypeResponse {
	return AttentionTypeResponse{
		ID:              at.ID,
		Name:            at.Name,
		DurationMinutes: at.DurationMinutes,
		BufferMinutes:   at.BufferMinutes,
	}
}
